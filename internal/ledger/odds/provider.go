package odds

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/race-bet-ledger/internal/ledger/store"
)

// Provider expõe a odd corrente de uma seleção com cache Redis na frente do
// Store (cache-aside). O ledger em si não usa isto para precificar apostas:
// o snapshot de odds na criação da aposta vem da linha da seleção, dentro da
// mesma transação. O Provider serve a API de leitura.
type Provider struct {
	rdb   *redis.Client
	store store.Reader
	ttl   time.Duration
}

func NewProvider(rdb *redis.Client, s store.Reader, ttl time.Duration) *Provider {
	return &Provider{rdb: rdb, store: s, ttl: ttl}
}

func key(selectionID string) string { return "odds:selection:" + selectionID }

// CurrentOdds retorna a odd viva da seleção.
func (p *Provider) CurrentOdds(ctx context.Context, selectionID string) (float64, error) {
	val, err := p.rdb.Get(ctx, key(selectionID)).Result()
	if err == nil {
		if f, perr := strconv.ParseFloat(val, 64); perr == nil {
			return f, nil
		}
	} else if err != redis.Nil {
		return 0, err
	}

	sel, err := p.store.GetSelection(ctx, selectionID)
	if err != nil {
		return 0, err
	}
	_ = p.Set(ctx, selectionID, sel.Odds)
	return sel.Odds, nil
}

// Set grava a odd corrente no cache com TTL.
func (p *Provider) Set(ctx context.Context, selectionID string, odds float64) error {
	return p.rdb.Set(ctx, key(selectionID), strconv.FormatFloat(odds, 'f', -1, 64), p.ttl).Err()
}
