package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
)

func seedAccount(t *testing.T, st Store, id string, balance int64) {
	t.Helper()
	err := st.WithinTx(context.Background(), func(tx Tx) error {
		return tx.InsertAccount(context.Background(), &domain.Account{
			ID:           id,
			DisplayName:  id,
			BalanceCents: balance,
			IsActive:     true,
			CreatedAt:    time.Now().UTC(),
		})
	})
	require.NoError(t, err)
}

func seedMarket(t *testing.T, st Store, id string, status domain.MarketStatus) {
	t.Helper()
	err := st.WithinTx(context.Background(), func(tx Tx) error {
		return tx.InsertMarket(context.Background(), &domain.Market{
			ID:        id,
			Title:     "Vencedor - " + id,
			Status:    status,
			CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)
}

// Erro dentro de fn desfaz tudo: nenhuma escrita parcial vaza pra fora.
func TestWithinTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedAccount(t, st, "alice", 10_000)

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpdateAccountBalance(ctx, "alice", 0))
		require.NoError(t, tx.InsertAccount(ctx, &domain.Account{ID: "bob", IsActive: true}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	acc, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), acc.BalanceCents)

	_, err = st.GetAccount(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestWithinTxCommitIsVisible(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedAccount(t, st, "alice", 10_000)

	err := st.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateAccountBalance(ctx, "alice", 2_500)
	})
	require.NoError(t, err)

	acc, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), acc.BalanceCents)
}

// Leituras dentro da transação enxergam as próprias escritas não commitadas.
func TestWithinTxReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedAccount(t, st, "alice", 10_000)

	err := st.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateAccountBalance(ctx, "alice", 7_000); err != nil {
			return err
		}
		acc, err := tx.GetAccountForUpdate(ctx, "alice")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(7_000), acc.BalanceCents)
		return nil
	})
	require.NoError(t, err)
}

// Cópias retornadas pelo store não são aliases do estado interno: mutar o
// resultado de uma leitura não muda nada persistido.
func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedAccount(t, st, "alice", 10_000)

	acc, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	acc.BalanceCents = 0

	again, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), again.BalanceCents)
}

func TestTransitionMarketGuard(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedMarket(t, st, "m1", domain.MarketOpen)

	now := time.Now().UTC()
	winner := "sel-1"

	// transição válida OPEN->SETTLED grava vencedor e timestamp
	err := st.WithinTx(ctx, func(tx Tx) error {
		return tx.TransitionMarket(ctx, "m1", domain.MarketOpen, domain.MarketSettled, &winner, &now)
	})
	require.NoError(t, err)

	mkt, err := st.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSettled, mkt.Status)
	require.NotNil(t, mkt.WinningSelectionID)
	assert.Equal(t, winner, *mkt.WinningSelectionID)
	require.NotNil(t, mkt.SettledAt)

	// segunda transição a partir de OPEN falha: o estado corrente já mudou
	err = st.WithinTx(ctx, func(tx Tx) error {
		return tx.TransitionMarket(ctx, "m1", domain.MarketOpen, domain.MarketSettled, &winner, &now)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = st.WithinTx(ctx, func(tx Tx) error {
		return tx.TransitionMarket(ctx, "missing", domain.MarketOpen, domain.MarketClosed, nil, nil)
	})
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

// Transição que falha no meio de uma transação maior não deixa rastro.
func TestTransitionFailureRollsBackWholeTx(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedMarket(t, st, "m1", domain.MarketClosed)
	seedAccount(t, st, "alice", 10_000)

	err := st.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateAccountBalance(ctx, "alice", 0); err != nil {
			return err
		}
		return tx.TransitionMarket(ctx, "m1", domain.MarketOpen, domain.MarketSettled, nil, nil)
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	acc, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), acc.BalanceCents)
}

func TestListPendingBetsOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	seedMarket(t, st, "m1", domain.MarketOpen)

	base := time.Now().UTC()
	insert := func(id string, status domain.BetStatus, placedAt time.Time) {
		err := st.WithinTx(ctx, func(tx Tx) error {
			return tx.InsertBet(ctx, &domain.Bet{
				ID:       id,
				MarketID: "m1",
				Status:   status,
				PlacedAt: placedAt,
			})
		})
		require.NoError(t, err)
	}
	insert("b2", domain.BetPending, base.Add(2*time.Second))
	insert("b1", domain.BetPending, base.Add(time.Second))
	insert("b3", domain.BetWon, base)

	err := st.WithinTx(ctx, func(tx Tx) error {
		pending, err := tx.ListPendingBets(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "b1", pending[0].ID)
		assert.Equal(t, "b2", pending[1].ID)
		return nil
	})
	require.NoError(t, err)
}
