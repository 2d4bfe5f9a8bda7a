package messages

import "time"

const (
	ShipmentEventUpserted  = "shipment.upserted"
	ShipmentEventDelivered = "shipment.delivered"
)

// ShipmentEvent публикуется в топик событий отправлений. Ключ сообщения: код.
type ShipmentEvent struct {
	Type         string    `json:"type"`
	ShipmentID   uint64    `json:"shipment_id"`
	Code         string    `json:"code"`
	Status       string    `json:"status"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
