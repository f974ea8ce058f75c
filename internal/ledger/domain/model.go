package domain

import "time"

// Status de mercado. Transições são one-way: OPEN -> CLOSED ou OPEN -> SETTLED.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "OPEN"
	MarketClosed    MarketStatus = "CLOSED"
	MarketSettled   MarketStatus = "SETTLED"
	MarketCancelled MarketStatus = "CANCELLED" // invalidação administrativa; reembolsa como CLOSED
)

// Status de aposta. PENDING é o único estado não-terminal.
type BetStatus string

const (
	BetPending   BetStatus = "PENDING"
	BetWon       BetStatus = "WON"
	BetLost      BetStatus = "LOST"
	BetCancelled BetStatus = "CANCELLED"
)

// Tipo de lançamento no ledger de transações.
type TransactionType string

const (
	StakeDebit   TransactionType = "STAKE_DEBIT"
	PayoutCredit TransactionType = "PAYOUT_CREDIT"
	RefundCredit TransactionType = "REFUND_CREDIT"
	BonusCredit  TransactionType = "BONUS_CREDIT"
)

// Account é a conta de um usuário. Saldo sempre em centavos (int64),
// nunca ponto flutuante. Contas não são deletadas, apenas desativadas.
type Account struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	BalanceCents    int64     `json:"balance_cents"`
	TotalBetsPlaced int64     `json:"total_bets_placed"`
	TotalBetsWon    int64     `json:"total_bets_won"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Market é uma pergunta apostável sobre uma corrida, com 2+ seleções.
type Market struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	EventRef           string       `json:"event_ref"` // referência da corrida/evento
	Status             MarketStatus `json:"status"`
	WinningSelectionID *string      `json:"winning_selection_id,omitempty"` // só após settlement
	ClosingTime        time.Time    `json:"closing_time"`
	CreatedAt          time.Time    `json:"created_at"`
	SettledAt          *time.Time   `json:"settled_at,omitempty"`
}

// Selection é um desfecho possível dentro de um mercado (ex: piloto X vencer).
// Odds aqui é o preço "vivo"; apostas congelam o valor no momento da criação.
type Selection struct {
	ID       string  `json:"id"`
	MarketID string  `json:"market_id"`
	Title    string  `json:"title"`
	Odds     float64 `json:"odds"`
	IsWinner bool    `json:"is_winner"`
}

// Bet é a aposta de um usuário em uma seleção. OddsAtPlacement é imutável:
// o preço é travado na criação, nunca reprecificado no settlement.
type Bet struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	MarketID        string     `json:"market_id"`
	SelectionID     string     `json:"selection_id"`
	StakeCents      int64      `json:"stake_cents"`
	OddsAtPlacement float64    `json:"odds_at_placement"`
	Status          BetStatus  `json:"status"`
	PayoutCents     int64      `json:"payout_cents"`
	PlacedAt        time.Time  `json:"placed_at"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}

// Transaction é um lançamento append-only do ledger. A soma de todos os
// amounts de um usuário reconstrói exatamente o saldo corrente.
type Transaction struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	Type                  TransactionType `json:"type"`
	AmountCents           int64           `json:"amount_cents"` // com sinal
	ResultingBalanceCents int64           `json:"resulting_balance_cents"`
	RelatedBetID          *string         `json:"related_bet_id,omitempty"`
	RelatedMarketID       *string         `json:"related_market_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}
