package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
)

// Memory implementa Store sobre mapas em memória. Um mutex global serializa
// as transações, então conflitos de escrita nunca acontecem aqui: o retry de
// ErrTransactionConflict só é exercitado pela implementação Postgres.
type Memory struct {
	mu sync.Mutex

	accounts     map[string]*domain.Account
	markets      map[string]*domain.Market
	selections   map[string]*domain.Selection
	bets         map[string]*domain.Bet
	transactions []domain.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		accounts:   make(map[string]*domain.Account),
		markets:    make(map[string]*domain.Market),
		selections: make(map[string]*domain.Selection),
		bets:       make(map[string]*domain.Bet),
	}
}

// memTx trabalha sobre uma cópia completa do estado; o commit troca os mapas
// do Store pela cópia. Erro em qualquer passo descarta tudo (all-or-nothing).
type memTx struct {
	accounts     map[string]*domain.Account
	markets      map[string]*domain.Market
	selections   map[string]*domain.Selection
	bets         map[string]*domain.Bet
	transactions []domain.Transaction
}

func (s *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		accounts:     cloneMap(s.accounts),
		markets:      cloneMap(s.markets),
		selections:   cloneMap(s.selections),
		bets:         cloneMap(s.bets),
		transactions: append([]domain.Transaction(nil), s.transactions...),
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.accounts = tx.accounts
	s.markets = tx.markets
	s.selections = tx.selections
	s.bets = tx.bets
	s.transactions = tx.transactions
	return nil
}

func (s *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func cloneMap[T any](src map[string]*T) map[string]*T {
	dst := make(map[string]*T, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

// ---- Reader do Store (fora de transação) ----

func (s *Memory) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{accounts: s.accounts}).GetAccount(ctx, id)
}

func (s *Memory) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{markets: s.markets}).GetMarket(ctx, id)
}

func (s *Memory) ListMarkets(ctx context.Context, status *domain.MarketStatus) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{markets: s.markets}).ListMarkets(ctx, status)
}

func (s *Memory) GetSelection(ctx context.Context, id string) (*domain.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{selections: s.selections}).GetSelection(ctx, id)
}

func (s *Memory) ListSelections(ctx context.Context, marketID string) ([]domain.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{selections: s.selections}).ListSelections(ctx, marketID)
}

func (s *Memory) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{bets: s.bets}).GetBet(ctx, id)
}

func (s *Memory) ListBetsByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{bets: s.bets}).ListBetsByUser(ctx, userID)
}

func (s *Memory) ListBetsByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{bets: s.bets}).ListBetsByMarket(ctx, marketID)
}

func (s *Memory) ListTransactionsByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{transactions: s.transactions}).ListTransactionsByUser(ctx, userID)
}

// ---- Reader dentro da transação ----

func (t *memTx) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	a, ok := t.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) GetMarket(_ context.Context, id string) (*domain.Market, error) {
	m, ok := t.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (t *memTx) ListMarkets(_ context.Context, status *domain.MarketStatus) ([]domain.Market, error) {
	out := make([]domain.Market, 0, len(t.markets))
	for _, m := range t.markets {
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) GetSelection(_ context.Context, id string) (*domain.Selection, error) {
	sel, ok := t.selections[id]
	if !ok {
		return nil, domain.ErrSelectionNotFound
	}
	cp := *sel
	return &cp, nil
}

func (t *memTx) ListSelections(_ context.Context, marketID string) ([]domain.Selection, error) {
	var out []domain.Selection
	for _, sel := range t.selections {
		if sel.MarketID == marketID {
			out = append(out, *sel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (t *memTx) GetBet(_ context.Context, id string) (*domain.Bet, error) {
	b, ok := t.bets[id]
	if !ok {
		return nil, domain.ErrBetNotFound
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) ListBetsByUser(_ context.Context, userID string) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range t.bets {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sortBets(out)
	return out, nil
}

func (t *memTx) ListBetsByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range t.bets {
		if b.MarketID == marketID {
			out = append(out, *b)
		}
	}
	sortBets(out)
	return out, nil
}

func (t *memTx) ListTransactionsByUser(_ context.Context, userID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tr := range t.transactions {
		if tr.UserID == userID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// ---- Locks: com mutex global, equivalem à leitura simples ----

func (t *memTx) GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error) {
	return t.GetMarket(ctx, id)
}

func (t *memTx) GetMarketForShare(ctx context.Context, id string) (*domain.Market, error) {
	return t.GetMarket(ctx, id)
}

// ---- Escritas ----

func (t *memTx) InsertAccount(_ context.Context, a *domain.Account) error {
	cp := *a
	t.accounts[a.ID] = &cp
	return nil
}

func (t *memTx) UpdateAccountBalance(_ context.Context, id string, newBalanceCents int64) error {
	a, ok := t.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.BalanceCents = newBalanceCents
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) BumpAccountCounters(_ context.Context, id string, placed, won int64) error {
	a, ok := t.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.TotalBetsPlaced += placed
	a.TotalBetsWon += won
	return nil
}

func (t *memTx) SetAccountActive(_ context.Context, id string, active bool) error {
	a, ok := t.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.IsActive = active
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, tr *domain.Transaction) error {
	t.transactions = append(t.transactions, *tr)
	return nil
}

func (t *memTx) InsertMarket(_ context.Context, m *domain.Market) error {
	cp := *m
	t.markets[m.ID] = &cp
	return nil
}

func (t *memTx) InsertSelection(_ context.Context, s *domain.Selection) error {
	cp := *s
	t.selections[s.ID] = &cp
	return nil
}

func (t *memTx) TransitionMarket(_ context.Context, id string, from, to domain.MarketStatus, winningSelectionID *string, settledAt *time.Time) error {
	m, ok := t.markets[id]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if m.Status != from {
		return domain.ErrInvalidTransition
	}
	m.Status = to
	m.WinningSelectionID = winningSelectionID
	m.SettledAt = settledAt
	return nil
}

func (t *memTx) MarkSelectionWinner(_ context.Context, id string) error {
	s, ok := t.selections[id]
	if !ok {
		return domain.ErrSelectionNotFound
	}
	s.IsWinner = true
	return nil
}

func (t *memTx) UpdateSelectionOdds(_ context.Context, id string, odds float64) error {
	s, ok := t.selections[id]
	if !ok {
		return domain.ErrSelectionNotFound
	}
	s.Odds = odds
	return nil
}

func (t *memTx) InsertBet(_ context.Context, b *domain.Bet) error {
	cp := *b
	t.bets[b.ID] = &cp
	return nil
}

func (t *memTx) ListPendingBets(_ context.Context, marketID string) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range t.bets {
		if b.MarketID == marketID && b.Status == domain.BetPending {
			out = append(out, *b)
		}
	}
	sortBets(out)
	return out, nil
}

func (t *memTx) SettleBet(_ context.Context, betID string, status domain.BetStatus, payoutCents int64, settledAt time.Time) error {
	b, ok := t.bets[betID]
	if !ok {
		return domain.ErrBetNotFound
	}
	b.Status = status
	b.PayoutCents = payoutCents
	b.SettledAt = &settledAt
	return nil
}

func sortBets(bets []domain.Bet) {
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].PlacedAt.Equal(bets[j].PlacedAt) {
			return bets[i].ID < bets[j].ID
		}
		return bets[i].PlacedAt.Before(bets[j].PlacedAt)
	})
}
