package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/race-bet-ledger/pkg/contracts/events"
)

// KafkaPublisher emite eventos do ledger após o commit de cada operação.
// Writers separados por tópico, no padrão de um writer por destino.
type KafkaPublisher struct {
	BetPlacedWriter     *kafka.Writer
	MarketSettledWriter *kafka.Writer
	MarketClosedWriter  *kafka.Writer
}

func NewKafkaPublisher(betPlaced, marketSettled, marketClosed *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{
		BetPlacedWriter:     betPlaced,
		MarketSettledWriter: marketSettled,
		MarketClosedWriter:  marketClosed,
	}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.BetPlacedWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}

func (p *KafkaPublisher) PublishMarketSettled(ctx context.Context, e events.MarketSettled) error {
	e.Ts = time.Now().UTC()
	b, _ := json.Marshal(e)
	return p.MarketSettledWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.MarketID), Value: b})
}

func (p *KafkaPublisher) PublishMarketClosed(ctx context.Context, e events.MarketClosed) error {
	e.Ts = time.Now().UTC()
	b, _ := json.Marshal(e)
	return p.MarketClosedWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.MarketID), Value: b})
}
