package dto

import "github.com/radieske/race-bet-ledger/internal/ledger/domain"

type MarketResponse struct {
	Market     *domain.Market     `json:"market"`
	Selections []domain.Selection `json:"selections"`
}

type CloseMarketResponse struct {
	Market        *domain.Market `json:"market"`
	RefundedCount int            `json:"refunded_count"`
}

type PlaceBetResponse struct {
	Bet *domain.Bet `json:"bet"`
}

type BalanceResponse struct {
	UserID       string `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
