package bet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/race-bet-ledger/internal/ledger/account"
	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

// Manager cuida do ciclo de vida das apostas. Uma aposta criada só sai de
// PENDING via settlement (WON/LOST) ou fechamento do mercado (CANCELLED);
// o usuário não cancela unilateralmente.
type Manager struct {
	store store.Store
}

func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Place valida e cria uma aposta contra um mercado aberto, como transação
// única: débito do stake primeiro, criação da aposta depois. Assim nunca
// existe aposta pendente sem o saldo correspondente já debitado.
//
// O mercado é lido com lock compartilhado (FOR SHARE): apostas concorrentes
// no mesmo mercado não se serializam entre si, mas um settle/close em curso
// (que trava a linha com FOR UPDATE) exclui novas apostas até commitar.
func (m *Manager) Place(ctx context.Context, userID, marketID, selectionID string, stakeCents int64) (*domain.Bet, error) {
	if stakeCents <= 0 {
		return nil, domain.ErrInvalidStake
	}

	var placed *domain.Bet
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		mkt, err := tx.GetMarketForShare(ctx, marketID)
		if err != nil {
			return err
		}
		if mkt.Status != domain.MarketOpen {
			return domain.ErrMarketNotOpen
		}

		sel, err := tx.GetSelection(ctx, selectionID)
		if errors.Is(err, domain.ErrSelectionNotFound) {
			return domain.ErrSelectionMismatch
		}
		if err != nil {
			return err
		}
		if sel.MarketID != marketID {
			return domain.ErrSelectionMismatch
		}

		b := &domain.Bet{
			ID:          uuid.NewString(),
			UserID:      userID,
			MarketID:    marketID,
			SelectionID: selectionID,
			StakeCents:  stakeCents,
			// preço travado aqui; o settlement nunca reprecifica
			OddsAtPlacement: sel.Odds,
			Status:          domain.BetPending,
			PlacedAt:        time.Now().UTC(),
		}

		// Débito antes da criação: se faltar saldo, aborta sem criar nada.
		if _, err := account.ApplyDeltaTx(ctx, tx, userID, -stakeCents, domain.StakeDebit, &b.ID, &marketID); err != nil {
			return err
		}
		if err := tx.InsertBet(ctx, b); err != nil {
			return err
		}

		placed = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// Get retorna uma aposta pelo id.
func (m *Manager) Get(ctx context.Context, betID string) (*domain.Bet, error) {
	return m.store.GetBet(ctx, betID)
}

// ListByUser retorna o histórico de apostas do usuário.
func (m *Manager) ListByUser(ctx context.Context, userID string) ([]domain.Bet, error) {
	if _, err := m.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return m.store.ListBetsByUser(ctx, userID)
}

// ListByMarket retorna as apostas de um mercado.
func (m *Manager) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	if _, err := m.store.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	return m.store.ListBetsByMarket(ctx, marketID)
}
