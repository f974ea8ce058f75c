package topics

const (
	// Odds
	OddsUpdates = "odds_updates"

	// Resultados de corrida (gatilho do settlement)
	RaceResults    = "race_results"
	RaceResultsDLQ = "race_results_dlq"

	// Eventos emitidos pelo ledger
	BetPlaced     = "bet_placed"
	MarketSettled = "market_settled"
	MarketClosed  = "market_closed"
)
