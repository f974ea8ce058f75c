package settle

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/radieske/race-bet-ledger/internal/ledger/account"
	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

// Orchestrator executa o settlement de um mercado: transição de status,
// resolução de cada aposta pendente e crédito dos payouts, tudo como uma
// única transação atômica contra o Store.
type Orchestrator struct {
	store store.Store
}

func NewOrchestrator(s store.Store) *Orchestrator {
	return &Orchestrator{store: s}
}

// Result agrega o desfecho de um settlement.
type Result struct {
	MarketID         string `json:"market_id"`
	SettledBetCount  int    `json:"settled_bet_count"`
	WonBetCount      int    `json:"won_bet_count"`
	TotalPayoutCents int64  `json:"total_payout_cents"`
}

// Settle resolve o mercado exatamente uma vez.
//
// O status do mercado é o token de exclusão mútua: a transição OPEN->SETTLED
// é guardada por expected-current-state, então de dois settles concorrentes
// só um commita: o outro vê ErrInvalidTransition e nenhum payout duplicado
// acontece. Qualquer erro no meio do caminho desfaz a transação inteira.
func (o *Orchestrator) Settle(ctx context.Context, marketID, winningSelectionID string) (*Result, error) {
	res := &Result{MarketID: marketID}

	err := o.store.WithinTx(ctx, func(tx store.Tx) error {
		// Retry em conflito reexecuta fn do zero; os agregados acompanham.
		*res = Result{MarketID: marketID}

		mkt, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if mkt.Status != domain.MarketOpen {
			return domain.ErrInvalidTransition
		}

		// Preconditions antes de qualquer mutação: a seleção vencedora
		// precisa pertencer a este mercado.
		winner, err := tx.GetSelection(ctx, winningSelectionID)
		if errors.Is(err, domain.ErrSelectionNotFound) {
			return domain.ErrSelectionMismatch
		}
		if err != nil {
			return err
		}
		if winner.MarketID != marketID {
			return domain.ErrSelectionMismatch
		}

		now := time.Now().UTC()
		if err := tx.TransitionMarket(ctx, marketID, domain.MarketOpen, domain.MarketSettled, &winningSelectionID, &now); err != nil {
			return err
		}
		if err := tx.MarkSelectionWinner(ctx, winningSelectionID); err != nil {
			return err
		}

		pending, err := tx.ListPendingBets(ctx, marketID)
		if err != nil {
			return err
		}

		for i := range pending {
			b := &pending[i]
			if b.SelectionID == winningSelectionID {
				// Payout cheio de uma vez (retorno do stake + ganho):
				// o stake já foi debitado na criação da aposta.
				payout := Payout(b.StakeCents, b.OddsAtPlacement)
				if err := tx.SettleBet(ctx, b.ID, domain.BetWon, payout, now); err != nil {
					return err
				}
				if _, err := account.ApplyDeltaTx(ctx, tx, b.UserID, payout, domain.PayoutCredit, &b.ID, &marketID); err != nil {
					return err
				}
				if err := tx.BumpAccountCounters(ctx, b.UserID, 1, 1); err != nil {
					return err
				}
				res.WonBetCount++
				res.TotalPayoutCents += payout
			} else {
				// Perdeu: payout zero, stake fica retido (banca).
				if err := tx.SettleBet(ctx, b.ID, domain.BetLost, 0, now); err != nil {
					return err
				}
				if err := tx.BumpAccountCounters(ctx, b.UserID, 1, 0); err != nil {
					return err
				}
			}
			res.SettledBetCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Payout calcula floor(stake * odds) em centavos inteiros. As odds usadas são
// sempre as congeladas no momento da aposta, nunca o preço vivo da seleção.
func Payout(stakeCents int64, oddsAtPlacement float64) int64 {
	return int64(math.Floor(float64(stakeCents) * oddsAtPlacement))
}
