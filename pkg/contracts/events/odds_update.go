package events

import "time"

// Evento publicado no tópico "odds_updates" pelo provedor de predições.
// O ledger só consome o valor; como a odd foi calculada não importa aqui.
type OddsUpdate struct {
	SelectionID string    `json:"selection_id"`
	MarketID    string    `json:"market_id"`
	Odds        float64   `json:"odds"`
	UpdatedAt   time.Time `json:"updated_at"`
	Source      string    `json:"source"`
	Version     int       `json:"version"` // incrementado a cada atualização
}
