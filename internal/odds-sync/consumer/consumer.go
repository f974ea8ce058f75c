package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/odds"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
	skafka "github.com/radieske/race-bet-ledger/internal/shared/kafka"
	"github.com/radieske/race-bet-ledger/pkg/contracts/events"
)

// Processor consome atualizações de odds do Kafka e aplica o preço vivo na
// linha da seleção + cache Redis. O preço vivo só afeta apostas futuras:
// odds_at_placement das apostas existentes nunca muda.
type Processor struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Store  store.Store
	Odds   *odds.Provider

	OnConsumed func()       // métricas (counter++)
	OnApplied  func()       // métricas
	OnError    func(string) // métricas por estágio
}

// Run inicia o loop principal de consumo e aplicação das atualizações
func (p *Processor) Run(ctx context.Context) error {
	for {
		_, value, err := skafka.ReadNext(ctx, p.Reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.OddsUpdate
		if err := json.Unmarshal(value, &ev); err != nil {
			p.Log.Warn("invalid message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			continue
		}

		if err := p.apply(ctx, ev); err != nil {
			p.Log.Warn("apply odds update failed",
				zap.String("selectionId", ev.SelectionID), zap.Error(err))
			if p.OnError != nil {
				p.OnError("apply")
			}
			continue
		}

		if p.OnApplied != nil {
			p.OnApplied()
		}
	}
}

func (p *Processor) apply(ctx context.Context, ev events.OddsUpdate) error {
	if ev.Odds <= 0 {
		return errors.New("non-positive odds")
	}

	err := p.Store.WithinTx(ctx, func(tx store.Tx) error {
		sel, err := tx.GetSelection(ctx, ev.SelectionID)
		if err != nil {
			return err
		}
		mkt, err := tx.GetMarket(ctx, sel.MarketID)
		if err != nil {
			return err
		}
		// mercado já resolvido/fechado não reprecifica
		if mkt.Status != domain.MarketOpen {
			return nil
		}
		return tx.UpdateSelectionOdds(ctx, ev.SelectionID, ev.Odds)
	})
	if err != nil {
		return err
	}

	// cache é best-effort; a fonte de verdade é a linha da seleção
	if cerr := p.Odds.Set(ctx, ev.SelectionID, ev.Odds); cerr != nil {
		p.Log.Warn("redis set failed", zap.Error(cerr))
	}
	return nil
}
