package events

import "time"

// Evento emitido após um settlement commitado (consumo downstream:
// notificações, analytics).
type MarketSettled struct {
	MarketID           string    `json:"market_id"`
	WinningSelectionID string    `json:"winning_selection_id"`
	SettledBetCount    int       `json:"settled_bet_count"`
	WonBetCount        int       `json:"won_bet_count"`
	TotalPayoutCents   int64     `json:"total_payout_cents"`
	Ts                 time.Time `json:"ts"`
}

// Evento emitido após um fechamento com reembolso.
type MarketClosed struct {
	MarketID      string    `json:"market_id"`
	RefundedCount int       `json:"refunded_count"`
	Ts            time.Time `json:"ts"`
}
