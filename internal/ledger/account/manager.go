package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

// Manager cuida do saldo e dos contadores agregados das contas.
// Recebe o Store por injeção explícita: nenhum estado global.
type Manager struct {
	store         store.Store
	startingGrant int64
}

func NewManager(s store.Store, startingGrantCents int64) *Manager {
	return &Manager{store: s, startingGrant: startingGrantCents}
}

// Create registra uma conta nova com o grant inicial. O grant entra como
// BONUS_CREDIT no ledger, então a soma das transações reconstrói o saldo
// desde o primeiro centavo.
func (m *Manager) Create(ctx context.Context, displayName string) (*domain.Account, error) {
	now := time.Now().UTC()
	acc := &domain.Account{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAccount(ctx, acc); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if m.startingGrant > 0 {
			newBal, err := ApplyDeltaTx(ctx, tx, acc.ID, m.startingGrant, domain.BonusCredit, nil, nil)
			if err != nil {
				return err
			}
			acc.BalanceCents = newBal
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Get retorna a conta (leitura simples, sem lock).
func (m *Manager) Get(ctx context.Context, userID string) (*domain.Account, error) {
	return m.store.GetAccount(ctx, userID)
}

// GetBalance reflete todo delta já commitado: nunca leitura defasada
// dentro da mesma cadeia causal.
func (m *Manager) GetBalance(ctx context.Context, userID string) (int64, error) {
	acc, err := m.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.BalanceCents, nil
}

// ApplyDelta aplica um delta de saldo em transação própria. Para compor com
// outras mutações (aposta, settlement), use ApplyDeltaTx dentro do mesmo Tx.
func (m *Manager) ApplyDelta(ctx context.Context, userID string, amountCents int64, txType domain.TransactionType) (int64, error) {
	var newBal int64
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		newBal, err = ApplyDeltaTx(ctx, tx, userID, amountCents, txType, nil, nil)
		return err
	})
	return newBal, err
}

// Deactivate desliga a conta (soft delete). Contas nunca são removidas.
func (m *Manager) Deactivate(ctx context.Context, userID string) error {
	return m.store.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccountForUpdate(ctx, userID); err != nil {
			return err
		}
		return tx.SetAccountActive(ctx, userID, false)
	})
}

// ListTransactions devolve o ledger append-only do usuário.
func (m *Manager) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if _, err := m.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return m.store.ListTransactionsByUser(ctx, userID)
}

// ApplyDeltaTx soma amountCents (pode ser negativo) ao saldo da conta e
// registra exatamente uma Transaction com o snapshot do saldo resultante.
// A leitura é feita com lock de linha, então dois débitos concorrentes nunca
// enxergam o mesmo saldo antigo. Saldo resultante negativo aborta com
// ErrInsufficientFunds sem nenhuma mutação.
func ApplyDeltaTx(ctx context.Context, tx store.Tx, userID string, amountCents int64, txType domain.TransactionType, relatedBetID, relatedMarketID *string) (int64, error) {
	acc, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !acc.IsActive {
		return 0, domain.ErrAccountNotFound
	}

	newBal := acc.BalanceCents + amountCents
	if newBal < 0 {
		return 0, domain.ErrInsufficientFunds
	}

	if err := tx.UpdateAccountBalance(ctx, userID, newBal); err != nil {
		return 0, err
	}
	if err := tx.AppendTransaction(ctx, &domain.Transaction{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Type:                  txType,
		AmountCents:           amountCents,
		ResultingBalanceCents: newBal,
		RelatedBetID:          relatedBetID,
		RelatedMarketID:       relatedMarketID,
		CreatedAt:             time.Now().UTC(),
	}); err != nil {
		return 0, fmt.Errorf("append transaction: %w", err)
	}
	return newBal, nil
}
