package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/race-bet-ledger/internal/ledger-service/producer"
	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/market"
	"github.com/radieske/race-bet-ledger/internal/ledger/settle"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
	"github.com/radieske/race-bet-ledger/internal/shared/config"
	"github.com/radieske/race-bet-ledger/internal/shared/db"
	skafka "github.com/radieske/race-bet-ledger/internal/shared/kafka"
	"github.com/radieske/race-bet-ledger/internal/shared/logger"
	"github.com/radieske/race-bet-ledger/internal/shared/metrics"
	ev "github.com/radieske/race-bet-ledger/pkg/contracts/events"
)

// settlement-worker consome resultados de corrida e dirige o settlement (ou
// o fechamento com reembolso quando a corrida é anulada). Reentrega do mesmo
// resultado é esperada: a guarda exactly-once do mercado faz a segunda
// passada falhar com ErrInvalidTransition, que aqui é tratado como "já
// resolvido": nunca um segundo payout.
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	var st store.Store
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		st = store.NewPostgres(pg)
	case "memory":
		st = store.NewMemory()
	default:
		log.Fatal("unknown STORE_DRIVER", zap.String("driver", cfg.StoreDriver))
	}

	orch := settle.NewOrchestrator(st)
	markets := market.NewManager(st, orch)

	reader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicRaceResults, "settlement-worker")
	defer reader.Close()

	settledW := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketSettled)
	defer settledW.Close()
	closedW := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketClosed)
	defer closedW.Close()
	publ := producer.NewKafkaPublisher(nil, settledW, closedW)

	var dlqWriter *skafka.Writer
	if cfg.TopicRaceResultsDLQ != "" {
		dlqWriter = skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRaceResultsDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus do worker
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_markets_settled_total", Help: "mercados resolvidos"})
	closed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_markets_closed_total", Help: "mercados fechados com reembolso"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_already_resolved_total", Help: "reentregas ignoradas (mercado já resolvido)"})
	payout := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_payout_cents_total", Help: "total pago em centavos"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(settled, closed, skipped, payout, errorsBy)

	metrics.StartMetricsServer(cfg.MetricsPort, st.Ping)

	log.Info("settlement-worker started", zap.String("consume", cfg.TopicRaceResults))

	ctx := context.Background()

	for {
		key, value, err := skafka.ReadNext(ctx, reader)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			errorsBy.WithLabelValues("read").Inc()
			time.Sleep(time.Second)
			continue
		}

		var result ev.RaceResult
		if jerr := json.Unmarshal(value, &result); jerr != nil {
			log.Error("unmarshal race_result", zap.Error(jerr))
			errorsBy.WithLabelValues("decode").Inc()
			if dlqWriter != nil {
				_ = skafka.WriteJSON(ctx, dlqWriter, string(key), value)
			}
			continue
		}

		out, err := processOne(ctx, log, markets, publ, &result)
		switch {
		case err == nil:
			switch {
			case out == nil:
				skipped.Inc()
			case result.Voided:
				closed.Inc()
			default:
				settled.Inc()
				payout.Add(float64(out.TotalPayoutCents))
			}
		default:
			log.Error("process race result", zap.String("marketId", result.MarketID), zap.Error(err))
			errorsBy.WithLabelValues("process").Inc()
			if dlqWriter != nil {
				_ = skafka.WriteJSON(ctx, dlqWriter, result.MarketID, value)
			}
			// backoff simples para evitar flood em caso de erro
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// processOne resolve um resultado: Close para corrida anulada, Settle para
// resultado normal. Retorna (nil, nil) quando o mercado já estava resolvido.
// O retry acontece só para falhas totalmente desfeitas (rollback completo);
// violação de regra de negócio nunca é repetida.
func processOne(
	ctx context.Context,
	log *zap.Logger,
	markets *market.Manager,
	publ *producer.KafkaPublisher,
	result *ev.RaceResult,
) (*settle.Result, error) {
	const retries = 3

	if result.Voided {
		res, err := markets.Close(ctx, result.MarketID)
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("market already resolved", zap.String("marketId", result.MarketID))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if perr := publ.PublishMarketClosed(ctx, ev.MarketClosed{
			MarketID:      result.MarketID,
			RefundedCount: res.RefundedCount,
		}); perr != nil {
			log.Warn("publish market_closed", zap.Error(perr))
		}
		return &settle.Result{MarketID: result.MarketID}, nil
	}

	var out *settle.Result
	var err error
	for i := 0; i < retries; i++ {
		out, err = markets.Settle(ctx, result.MarketID, result.WinningSelectionID)
		if err == nil || !errors.Is(err, domain.ErrTransactionConflict) {
			break
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Info("market already resolved", zap.String("marketId", result.MarketID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if perr := publ.PublishMarketSettled(ctx, ev.MarketSettled{
		MarketID:           result.MarketID,
		WinningSelectionID: result.WinningSelectionID,
		SettledBetCount:    out.SettledBetCount,
		WonBetCount:        out.WonBetCount,
		TotalPayoutCents:   out.TotalPayoutCents,
	}); perr != nil {
		log.Warn("publish market_settled", zap.Error(perr))
	}
	return out, nil
}
