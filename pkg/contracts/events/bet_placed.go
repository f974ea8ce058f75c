package events

// Evento publicado pelo ledger-service após o commit de uma aposta.
type BetPlaced struct {
	BetID           string  `json:"bet_id"`
	UserID          string  `json:"user_id"`
	MarketID        string  `json:"market_id"`
	SelectionID     string  `json:"selection_id"`
	StakeCents      int64   `json:"stake_cents"`
	OddsAtPlacement float64 `json:"odds_at_placement"`
	TsUnixMs        int64   `json:"ts_unix_ms"`
}
