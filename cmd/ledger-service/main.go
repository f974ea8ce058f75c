package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	lhttp "github.com/radieske/race-bet-ledger/internal/ledger-service/http"
	"github.com/radieske/race-bet-ledger/internal/ledger-service/producer"
	"github.com/radieske/race-bet-ledger/internal/ledger/account"
	"github.com/radieske/race-bet-ledger/internal/ledger/bet"
	"github.com/radieske/race-bet-ledger/internal/ledger/market"
	"github.com/radieske/race-bet-ledger/internal/ledger/odds"
	"github.com/radieske/race-bet-ledger/internal/ledger/settle"
	"github.com/radieske/race-bet-ledger/internal/ledger/store"
	sharedcache "github.com/radieske/race-bet-ledger/internal/shared/cache"
	"github.com/radieske/race-bet-ledger/internal/shared/config"
	"github.com/radieske/race-bet-ledger/internal/shared/db"
	skafka "github.com/radieske/race-bet-ledger/internal/shared/kafka"
	"github.com/radieske/race-bet-ledger/internal/shared/logger"
	"github.com/radieske/race-bet-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("ledger-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("storeDriver", cfg.StoreDriver))

	// Store escolhido por configuração: falha na subida se o banco não
	// responde; nunca troca silenciosamente para memória
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

	// Redis: cache de odds correntes para a API de leitura
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers para os eventos emitidos pelo ledger
	betPlacedW := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer betPlacedW.Close()
	marketSettledW := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketSettled)
	defer marketSettledW.Close()
	marketClosedW := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketClosed)
	defer marketClosedW.Close()
	publ := producer.NewKafkaPublisher(betPlacedW, marketSettledW, marketClosedW)

	// Managers do core, com o Store injetado explicitamente
	accounts := account.NewManager(st, cfg.StartingGrantCents)
	orch := settle.NewOrchestrator(st)
	markets := market.NewManager(st, orch)
	bets := bet.NewManager(st)
	oddsProvider := odds.NewProvider(rdb, st, 30*time.Second)

	api := lhttp.NewServer(log, accounts, markets, bets, oddsProvider, publ)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	log.Info("ledger-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
