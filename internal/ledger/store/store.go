package store

import (
	"context"
	"time"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
)

// Reader expõe leituras fora de transação (read models da API).
type Reader interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	ListMarkets(ctx context.Context, status *domain.MarketStatus) ([]domain.Market, error)
	GetSelection(ctx context.Context, id string) (*domain.Selection, error)
	ListSelections(ctx context.Context, marketID string) ([]domain.Selection, error)
	GetBet(ctx context.Context, id string) (*domain.Bet, error)
	ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error)
	ListBetsByMarket(ctx context.Context, marketID string) ([]domain.Bet, error)
	ListTransactionsByUser(ctx context.Context, userID string) ([]domain.Transaction, error)
}

// Tx é o conjunto de operações disponíveis dentro de uma transação atômica.
// Toda mutação multi-passo do ledger acontece exclusivamente por aqui.
type Tx interface {
	Reader

	// Leituras com lock de linha (FOR UPDATE / FOR SHARE no Postgres)
	GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error)
	GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error)
	GetMarketForShare(ctx context.Context, id string) (*domain.Market, error)

	InsertAccount(ctx context.Context, a *domain.Account) error
	UpdateAccountBalance(ctx context.Context, id string, newBalanceCents int64) error
	BumpAccountCounters(ctx context.Context, id string, placed, won int64) error
	SetAccountActive(ctx context.Context, id string, active bool) error
	AppendTransaction(ctx context.Context, t *domain.Transaction) error

	InsertMarket(ctx context.Context, m *domain.Market) error
	InsertSelection(ctx context.Context, s *domain.Selection) error
	// TransitionMarket muda o status somente se o status corrente for `from`
	// (guarda de transição exactly-once). Retorna ErrInvalidTransition caso
	// o mercado exista mas esteja em outro estado.
	TransitionMarket(ctx context.Context, id string, from, to domain.MarketStatus, winningSelectionID *string, settledAt *time.Time) error
	MarkSelectionWinner(ctx context.Context, id string) error
	UpdateSelectionOdds(ctx context.Context, id string, odds float64) error

	InsertBet(ctx context.Context, b *domain.Bet) error
	// ListPendingBets retorna as apostas PENDING do mercado, com lock de linha.
	ListPendingBets(ctx context.Context, marketID string) ([]domain.Bet, error)
	SettleBet(ctx context.Context, betID string, status domain.BetStatus, payoutCents int64, settledAt time.Time) error
}

// Store é a persistência transacional abstrata do ledger. Duas implementações:
// Memory (testes/local) e Postgres (produção), escolhidas por configuração;
// nunca por fallback silencioso em runtime.
type Store interface {
	Reader

	// WithinTx executa fn como unidade atômica: ou toda linha muda, ou nenhuma.
	// Em ErrTransactionConflict a execução é repetida um número limitado de
	// vezes (nenhum efeito foi observado, repetir é seguro); qualquer outro
	// erro aborta e é devolvido como veio.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
}
