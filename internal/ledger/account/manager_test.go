package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

const startingGrant = int64(100_000)

func newManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewManager(st, startingGrant), st
}

func TestCreateAccountAppliesStartingGrant(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	acc, err := mgr.Create(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, startingGrant, acc.BalanceCents)
	assert.True(t, acc.IsActive)

	// o grant entra no ledger como BONUS_CREDIT
	txs, err := mgr.ListTransactions(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.BonusCredit, txs[0].Type)
	assert.Equal(t, startingGrant, txs[0].AmountCents)
	assert.Equal(t, startingGrant, txs[0].ResultingBalanceCents)
}

func TestApplyDelta(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	acc, err := mgr.Create(ctx, "bob")
	require.NoError(t, err)

	newBal, err := mgr.ApplyDelta(ctx, acc.ID, -30_000, domain.StakeDebit)
	require.NoError(t, err)
	assert.Equal(t, startingGrant-30_000, newBal)

	newBal, err = mgr.ApplyDelta(ctx, acc.ID, 10_000, domain.PayoutCredit)
	require.NoError(t, err)
	assert.Equal(t, startingGrant-20_000, newBal)

	bal, err := mgr.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, startingGrant-20_000, bal)

	// cada delta bem-sucedido gera exatamente uma Transaction
	txs, err := mgr.ListTransactions(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 3) // grant + debit + credit
}

func TestApplyDeltaInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	acc, err := mgr.Create(ctx, "bob")
	require.NoError(t, err)

	_, err = mgr.ApplyDelta(ctx, acc.ID, -(startingGrant + 1), domain.StakeDebit)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// saldo intacto e nenhuma transação extra registrada
	bal, err := mgr.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, startingGrant, bal)

	txs, err := mgr.ListTransactions(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestApplyDeltaAccountNotFound(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	_, err := mgr.ApplyDelta(ctx, "missing-user", 1_000, domain.BonusCredit)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestApplyDeltaInactiveAccount(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	acc, err := mgr.Create(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, mgr.Deactivate(ctx, acc.ID))

	_, err = mgr.ApplyDelta(ctx, acc.ID, 1_000, domain.BonusCredit)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// Propriedade de conservação: a soma de todas as transações do usuário
// reconstrói exatamente o saldo corrente, em qualquer ponto.
func TestLedgerConservation(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	acc, err := mgr.Create(ctx, "bob")
	require.NoError(t, err)

	deltas := []struct {
		amount int64
		typ    domain.TransactionType
	}{
		{-25_000, domain.StakeDebit},
		{-10_000, domain.StakeDebit},
		{50_000, domain.PayoutCredit},
		{10_000, domain.RefundCredit},
		{-60_000, domain.StakeDebit},
	}

	for _, d := range deltas {
		_, err := mgr.ApplyDelta(ctx, acc.ID, d.amount, d.typ)
		require.NoError(t, err)

		txs, err := mgr.ListTransactions(ctx, acc.ID)
		require.NoError(t, err)
		var sum int64
		for _, tx := range txs {
			sum += tx.AmountCents
		}
		bal, err := mgr.GetBalance(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, bal, sum, "soma do ledger deve bater com o saldo")
		assert.Equal(t, bal, txs[len(txs)-1].ResultingBalanceCents)
	}
}
