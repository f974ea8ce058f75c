package dto

import "time"

type CreateAccountRequest struct {
	DisplayName string `json:"display_name"`
}

type SelectionSpec struct {
	Title string  `json:"title"`
	Odds  float64 `json:"odds"` // vem do provedor de predições
}

type CreateMarketRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	EventRef    string          `json:"event_ref"`
	ClosingTime time.Time       `json:"closing_time"`
	Selections  []SelectionSpec `json:"selections"`
}

type SettleMarketRequest struct {
	WinningSelectionID string `json:"winning_selection_id"`
}

type PlaceBetRequest struct {
	UserID      string `json:"user_id"`
	MarketID    string `json:"market_id"`
	SelectionID string `json:"selection_id"`
	StakeCents  int64  `json:"stake_cents"`
}
