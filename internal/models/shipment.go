package models

import "time"

// Статусы отправления. Значения хранятся в БД как есть и видны фронтенду.
const (
	ShipmentStatusInTransit = "Em trânsito"
	ShipmentStatusDelivered = "Entregue"
)

type Shipment struct {
	ID           uint64    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Street       string    `json:"street"`
	Number       string    `json:"number"`
	Neighborhood string    `json:"neighborhood"`
	PostalCode   string    `json:"postalCode"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Shipment) Delivered() bool {
	return s.Status == ShipmentStatusDelivered
}

type ShipmentInput struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	PostalCode   string `json:"postalCode"`
}

// ShipmentSummary: строка таблицы последних отправлений.
type ShipmentSummary struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type StageTemplate struct {
	ID        uint64 `json:"id,omitempty"`
	DayOffset int    `json:"dayOffset"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// DefaultStageTemplates возвращает набор этапов, которым заполняется пустая таблица.
func DefaultStageTemplates() []StageTemplate {
	return []StageTemplate{
		{DayOffset: 0, Title: "Em preparação", Message: "Recebemos a sua compra no centro de distribuição."},
		{DayOffset: 1, Title: "Em preparação", Message: "Separação dos itens no estoque."},
		{DayOffset: 2, Title: "Em preparação", Message: "Conferência dos itens em andamento."},
		{DayOffset: 3, Title: "Saiu para entrega", Message: "Seu pedido está a caminho!"},
	}
}

type Event struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	IsCompleted bool   `json:"isCompleted"`
}

type PackageInfo struct {
	Recipient         string `json:"recipient"`
	Origin            string `json:"origin"`
	Destination       string `json:"destination"`
	EstimatedDelivery string `json:"estimatedDelivery"`
	Status            string `json:"status"`
	Delivered         bool   `json:"delivered"`
}

type Tracking struct {
	PackageInfo PackageInfo `json:"packageInfo"`
	Events      []Event     `json:"events"`
}
