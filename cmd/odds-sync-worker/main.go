package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/race-bet-ledger/internal/ledger/odds"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
	"github.com/radieske/race-bet-ledger/internal/odds-sync/consumer"
	sharedcache "github.com/radieske/race-bet-ledger/internal/shared/cache"
	"github.com/radieske/race-bet-ledger/internal/shared/config"
	"github.com/radieske/race-bet-ledger/internal/shared/db"
	skafka "github.com/radieske/race-bet-ledger/internal/shared/kafka"
	"github.com/radieske/race-bet-ledger/internal/shared/logger"
	"github.com/radieske/race-bet-ledger/internal/shared/metrics"
)

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

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	reader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicOddsUpdates, "odds-sync")
	defer reader.Close()

	// Métricas Prometheus do worker
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "odds_sync_messages_consumed_total", Help: "mensagens consumidas"})
	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "odds_sync_updates_applied_total", Help: "odds aplicadas na seleção"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "odds_sync_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, applied, errorsBy)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := st.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Store:      st,
		Odds:       odds.NewProvider(rdb, st, 60*time.Second),
		OnConsumed: func() { consumed.Inc() },
		OnApplied:  func() { applied.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("odds-sync-worker started", zap.String("consume", cfg.TopicOddsUpdates))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor", zap.Error(err))
	}
}
