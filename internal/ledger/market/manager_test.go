package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-bet-ledger/internal/ledger/account"
	"github.com/radieske/race-bet-ledger/internal/ledger/bet"
	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/settle"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

type fixture struct {
	store    store.Store
	accounts *account.Manager
	markets  *Manager
	bets     *bet.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	return &fixture{
		store:    st,
		accounts: account.NewManager(st, 100_000),
		markets:  NewManager(st, settle.NewOrchestrator(st)),
		bets:     bet.NewManager(st),
	}
}

func raceMarket() CreateInput {
	return CreateInput{
		Title:       "Race winner - GP Interlagos",
		EventRef:    "race-2026-interlagos",
		ClosingTime: time.Now().Add(2 * time.Hour),
		Selections: []SelectionSpec{
			{Title: "Driver A", Odds: 2.0},
			{Title: "Driver B", Odds: 4.0},
			{Title: "Driver C", Odds: 7.5},
		},
	}
}

func TestCreateMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mkt, sels, err := f.markets.Create(ctx, raceMarket())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketOpen, mkt.Status)
	assert.Nil(t, mkt.WinningSelectionID)
	require.Len(t, sels, 3)
	for _, sel := range sels {
		assert.Equal(t, mkt.ID, sel.MarketID)
		assert.False(t, sel.IsWinner)
	}

	got, gotSels, err := f.markets.Get(ctx, mkt.ID)
	require.NoError(t, err)
	assert.Equal(t, mkt.ID, got.ID)
	assert.Len(t, gotSels, 3)
}

func TestCreateMarketSpecValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"sem titulo", func(in *CreateInput) { in.Title = "  " }},
		{"uma selecao so", func(in *CreateInput) { in.Selections = in.Selections[:1] }},
		{"titulos duplicados", func(in *CreateInput) { in.Selections[1].Title = in.Selections[0].Title }},
		{"selecao sem titulo", func(in *CreateInput) { in.Selections[0].Title = "" }},
		{"odds zero", func(in *CreateInput) { in.Selections[0].Odds = 0 }},
		{"odds negativa", func(in *CreateInput) { in.Selections[2].Odds = -1.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := raceMarket()
			tc.mutate(&in)
			_, _, err := f.markets.Create(ctx, in)
			assert.ErrorIs(t, err, domain.ErrInvalidMarketSpec)
		})
	}

	// nada deve ter sido criado pelas tentativas inválidas
	mkts, err := f.markets.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, mkts)
}

func TestCloseMarketRefundsPendingBets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mkt, sels, err := f.markets.Create(ctx, raceMarket())
	require.NoError(t, err)

	bob, err := f.accounts.Create(ctx, "bob")
	require.NoError(t, err)
	alice, err := f.accounts.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = f.bets.Place(ctx, bob.ID, mkt.ID, sels[0].ID, 30_000)
	require.NoError(t, err)
	_, err = f.bets.Place(ctx, alice.ID, mkt.ID, sels[1].ID, 45_000)
	require.NoError(t, err)

	res, err := f.markets.Close(ctx, mkt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RefundedCount)
	assert.Equal(t, domain.MarketClosed, res.Market.Status)

	// fechamento não é settlement: o timestamp segue nulo
	assert.Nil(t, res.Market.SettledAt)
	got, _, err := f.markets.Get(ctx, mkt.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SettledAt)

	// stakes de volta nas contas, apostas canceladas
	bobBal, _ := f.accounts.GetBalance(ctx, bob.ID)
	aliceBal, _ := f.accounts.GetBalance(ctx, alice.ID)
	assert.Equal(t, int64(100_000), bobBal)
	assert.Equal(t, int64(100_000), aliceBal)

	bets, err := f.bets.ListByMarket(ctx, mkt.ID)
	require.NoError(t, err)
	for _, b := range bets {
		assert.Equal(t, domain.BetCancelled, b.Status)
		assert.Zero(t, b.PayoutCents)
	}

	// reembolso registrado no ledger
	txs, err := f.accounts.ListTransactions(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, txs, 3) // grant, stake, refund
	assert.Equal(t, domain.RefundCredit, txs[2].Type)
	assert.Equal(t, int64(30_000), txs[2].AmountCents)
}

func TestCloseMarketTwiceDoesNotDoubleRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mkt, sels, err := f.markets.Create(ctx, raceMarket())
	require.NoError(t, err)
	bob, err := f.accounts.Create(ctx, "bob")
	require.NoError(t, err)
	_, err = f.bets.Place(ctx, bob.ID, mkt.ID, sels[0].ID, 30_000)
	require.NoError(t, err)

	_, err = f.markets.Close(ctx, mkt.ID)
	require.NoError(t, err)

	_, err = f.markets.Close(ctx, mkt.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// o segundo close não pode emitir nenhum reembolso extra
	bal, _ := f.accounts.GetBalance(ctx, bob.ID)
	assert.Equal(t, int64(100_000), bal)
	txs, _ := f.accounts.ListTransactions(ctx, bob.ID)
	assert.Len(t, txs, 3)
}

func TestCloseMarketNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.markets.Close(ctx, "missing-market")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestCloseSettledMarketFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mkt, sels, err := f.markets.Create(ctx, raceMarket())
	require.NoError(t, err)

	_, err = f.markets.Settle(ctx, mkt.ID, sels[0].ID)
	require.NoError(t, err)

	_, err = f.markets.Close(ctx, mkt.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestListMarketsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m1, _, err := f.markets.Create(ctx, raceMarket())
	require.NoError(t, err)
	in := raceMarket()
	in.EventRef = "race-2026-monaco"
	m2, _, err := f.markets.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.markets.Close(ctx, m1.ID)
	require.NoError(t, err)

	open := domain.MarketOpen
	mkts, err := f.markets.List(ctx, &open)
	require.NoError(t, err)
	require.Len(t, mkts, 1)
	assert.Equal(t, m2.ID, mkts[0].ID)
}
