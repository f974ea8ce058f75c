package events

import "time"

// Evento consumido do tópico "race_results". Dispara o settlement (ou o
// fechamento com reembolso, quando a corrida é anulada).
type RaceResult struct {
	EventRef           string    `json:"event_ref"`
	MarketID           string    `json:"market_id"`
	WinningSelectionID string    `json:"winning_selection_id,omitempty"`
	Voided             bool      `json:"voided"` // corrida cancelada: reembolsar em vez de resolver
	Source             string    `json:"source"`
	OccurredAt         time.Time `json:"occurred_at"`
}
