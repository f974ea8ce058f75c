package market

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/race-bet-ledger/internal/ledger/account"
	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/settle"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

// Manager cuida do ciclo de vida dos mercados: criação com seleções,
// fechamento com reembolso em massa e delegação do settlement.
type Manager struct {
	store store.Store
	orch  *settle.Orchestrator
}

func NewManager(s store.Store, orch *settle.Orchestrator) *Manager {
	return &Manager{store: s, orch: orch}
}

// SelectionSpec descreve uma seleção na criação do mercado.
type SelectionSpec struct {
	Title string
	Odds  float64
}

// CreateInput descreve um mercado novo.
type CreateInput struct {
	Title       string
	Description string
	EventRef    string
	ClosingTime time.Time
	Selections  []SelectionSpec
}

// CloseResult agrega o desfecho de um fechamento.
type CloseResult struct {
	Market        *domain.Market `json:"market"`
	RefundedCount int            `json:"refunded_count"`
}

// Create cria o mercado e todas as seleções como unidade atômica: ou todas
// as linhas existem, ou nenhuma. Exige 2+ seleções com títulos únicos e
// odds positivas.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*domain.Market, []domain.Selection, error) {
	if err := validateSpec(in); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	mkt := &domain.Market{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		EventRef:    in.EventRef,
		Status:      domain.MarketOpen,
		ClosingTime: in.ClosingTime,
		CreatedAt:   now,
	}
	sels := make([]domain.Selection, 0, len(in.Selections))
	for _, spec := range in.Selections {
		sels = append(sels, domain.Selection{
			ID:       uuid.NewString(),
			MarketID: mkt.ID,
			Title:    spec.Title,
			Odds:     spec.Odds,
		})
	}

	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertMarket(ctx, mkt); err != nil {
			return err
		}
		for i := range sels {
			if err := tx.InsertSelection(ctx, &sels[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return mkt, sels, nil
}

// Close transiciona OPEN->CLOSED e cancela toda aposta ainda pendente,
// devolvendo o stake original via REFUND_CREDIT. A guarda de transição
// garante que uma segunda chamada falha com ErrInvalidTransition em vez de
// reembolsar duas vezes.
func (m *Manager) Close(ctx context.Context, marketID string) (*CloseResult, error) {
	res := &CloseResult{}

	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		res.RefundedCount = 0

		mkt, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if mkt.Status != domain.MarketOpen {
			return domain.ErrInvalidTransition
		}

		now := time.Now().UTC()
		// settled_at fica nulo: o timestamp é exclusivo do settlement.
		if err := tx.TransitionMarket(ctx, marketID, domain.MarketOpen, domain.MarketClosed, nil, nil); err != nil {
			return err
		}

		pending, err := tx.ListPendingBets(ctx, marketID)
		if err != nil {
			return err
		}
		for i := range pending {
			b := &pending[i]
			if err := tx.SettleBet(ctx, b.ID, domain.BetCancelled, 0, now); err != nil {
				return err
			}
			if _, err := account.ApplyDeltaTx(ctx, tx, b.UserID, b.StakeCents, domain.RefundCredit, &b.ID, &marketID); err != nil {
				return err
			}
			res.RefundedCount++
		}

		mkt.Status = domain.MarketClosed
		res.Market = mkt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Settle delega ao orquestrador; a mesma guarda one-way vale lá.
func (m *Manager) Settle(ctx context.Context, marketID, winningSelectionID string) (*settle.Result, error) {
	return m.orch.Settle(ctx, marketID, winningSelectionID)
}

// Get retorna o mercado com suas seleções.
func (m *Manager) Get(ctx context.Context, marketID string) (*domain.Market, []domain.Selection, error) {
	mkt, err := m.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, nil, err
	}
	sels, err := m.store.ListSelections(ctx, marketID)
	if err != nil {
		return nil, nil, err
	}
	return mkt, sels, nil
}

// List retorna mercados, opcionalmente filtrados por status.
func (m *Manager) List(ctx context.Context, status *domain.MarketStatus) ([]domain.Market, error) {
	return m.store.ListMarkets(ctx, status)
}

func validateSpec(in CreateInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.ErrInvalidMarketSpec
	}
	if len(in.Selections) < 2 {
		return domain.ErrInvalidMarketSpec
	}
	seen := make(map[string]struct{}, len(in.Selections))
	for _, s := range in.Selections {
		title := strings.TrimSpace(s.Title)
		if title == "" || s.Odds <= 0 {
			return domain.ErrInvalidMarketSpec
		}
		if _, dup := seen[title]; dup {
			return domain.ErrInvalidMarketSpec
		}
		seen[title] = struct{}{}
	}
	return nil
}
