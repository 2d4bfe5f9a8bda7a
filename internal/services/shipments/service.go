package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/codes"
	"github.com/BearBump/ShipTrack/internal/services/timeline"
	"github.com/pkg/errors"
)

const (
	defaultRecentLimit = 10
	listTimeLayout     = "2006-01-02 15:04:05"

	MsgRequiredField = "Campo obrigatório ausente"
	fallbackStatus   = "Em Trânsito"
)

type Repository interface {
	UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error)
	GetShipmentByCode(ctx context.Context, code string) (*models.Shipment, error)
	ListRecentShipments(ctx context.Context, limit int) ([]*models.Shipment, error)
	ShipmentCodeExists(ctx context.Context, code string) (bool, error)
	UpdateShipmentStatus(ctx context.Context, id uint64, status string) (bool, error)
	ListStageTemplates(ctx context.Context) ([]models.StageTemplate, error)
	ReplaceStageTemplates(ctx context.Context, stages []models.StageTemplate) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type StageTemplateInput struct {
	DayOffset *int   `json:"dayOffset"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// Service без репозитория работает в деградированном режиме:
// чтение отдаёт заглушки, запись возвращает ErrStorageUnavailable.
type Service struct {
	repo  Repository
	codes *codes.Generator
	pub   Publisher
	topic string

	loc         *time.Location
	recentLimit int
	now         func() time.Time
}

func New(repo Repository, pub Publisher, topic string) *Service {
	s := &Service{
		repo:        repo,
		pub:         pub,
		topic:       topic,
		loc:         time.UTC,
		recentLimit: defaultRecentLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if repo != nil {
		s.codes = codes.New(repo, nil)
	}
	return s
}

func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *Service) WithRecentLimit(n int) *Service {
	if n > 0 {
		s.recentLimit = n
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithRand(r codes.Rand) *Service {
	if s.repo != nil {
		s.codes = codes.New(s.repo, r)
	}
	return s
}

func (s *Service) Degraded() bool {
	return s.repo == nil
}

func (s *Service) Ping(ctx context.Context) error {
	if s.repo == nil {
		return models.ErrStorageUnavailable
	}
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) GenerateCode(ctx context.Context) (codes.Code, error) {
	if s.repo == nil {
		return codes.Code{}, models.ErrStorageUnavailable
	}
	code, err := s.codes.Generate(ctx)
	switch {
	case errors.Is(err, models.ErrGenerationExhausted):
		metrics.CodesGenerated.WithLabelValues("exhausted").Inc()
		slog.Error("tracking code space exhausted", "attempts", codes.MaxAttempts)
		return codes.Code{}, err
	case err != nil:
		metrics.CodesGenerated.WithLabelValues("error").Inc()
		return codes.Code{}, err
	}
	metrics.CodesGenerated.WithLabelValues("ok").Inc()
	return code, nil
}

func (s *Service) UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error) {
	clean, err := validateShipment(in)
	if err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, models.ErrStorageUnavailable
	}

	sh, err := s.repo.UpsertShipment(ctx, clean)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, messages.ShipmentEventUpserted, sh)
	return sh, nil
}

func validateShipment(in models.ShipmentInput) (models.ShipmentInput, error) {
	fields := []struct {
		name string
		val  *string
	}{
		{"name", &in.Name},
		{"email", &in.Email},
		{"phone", &in.Phone},
		{"street", &in.Street},
		{"number", &in.Number},
		{"neighborhood", &in.Neighborhood},
		{"postalCode", &in.PostalCode},
		{"code", &in.Code},
	}
	for _, f := range fields {
		*f.val = strings.TrimSpace(*f.val)
		if *f.val == "" {
			return in, models.NewValidationError(f.name, MsgRequiredField)
		}
	}

	code, err := codes.Normalize(in.Code)
	if err != nil {
		return in, err
	}
	in.Code = code
	return in, nil
}

func (s *Service) ListRecentShipments(ctx context.Context) ([]models.ShipmentSummary, error) {
	if s.repo == nil {
		return []models.ShipmentSummary{}, nil
	}
	items, err := s.repo.ListRecentShipments(ctx, s.recentLimit)
	if err != nil {
		return nil, err
	}

	out := make([]models.ShipmentSummary, 0, len(items))
	for _, sh := range items {
		out = append(out, models.ShipmentSummary{
			Name:      sh.Name,
			Code:      sh.Code,
			Email:     sh.Email,
			Status:    sh.Status,
			CreatedAt: sh.CreatedAt.In(s.loc).Format(listTimeLayout),
		})
	}
	return out, nil
}

// Track строит историю доставки по коду. Заодно переводит отправление
// в "Entregue", если все этапы уже пройдены.
func (s *Service) Track(ctx context.Context, rawCode string) (*models.Tracking, error) {
	code := codes.StripSpaces(rawCode)
	if code == "" {
		return nil, models.NewValidationError("code", "codigo é obrigatório")
	}
	if s.repo == nil {
		return FallbackTracking(), nil
	}

	sh, err := s.repo.GetShipmentByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	stages, err := s.repo.ListStageTemplates(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.advanceStatus(ctx, sh, stages, now)

	events := timeline.Project(sh, stages, now, s.loc)
	return &models.Tracking{
		PackageInfo: timeline.Summarize(sh, events),
		Events:      events,
	}, nil
}

// advanceStatus работает best effort: ошибка записи только логируется,
// а в ответе остаётся новый статус. Событие delivered уходит один раз,
// от запроса, который сам перевёл строку.
func (s *Service) advanceStatus(ctx context.Context, sh *models.Shipment, stages []models.StageTemplate, now time.Time) {
	status, ok := timeline.Transition(sh, stages, now)
	if !ok {
		return
	}
	sh.Status = status

	changed, err := s.repo.UpdateShipmentStatus(ctx, sh.ID, status)
	if err != nil {
		metrics.StatusUpdateFailures.Inc()
		slog.Warn("failed to mark shipment delivered", "code", sh.Code, "error", err.Error())
		return
	}
	if !changed {
		return
	}
	metrics.ShipmentsDelivered.Inc()
	s.publish(ctx, messages.ShipmentEventDelivered, sh)
}

func (s *Service) ListStageTemplates(ctx context.Context) ([]models.StageTemplate, error) {
	if s.repo == nil {
		return models.DefaultStageTemplates(), nil
	}
	return s.repo.ListStageTemplates(ctx)
}

// ReplaceStageTemplates проверяет весь список до записи: один невалидный
// элемент отменяет замену целиком.
func (s *Service) ReplaceStageTemplates(ctx context.Context, items []StageTemplateInput) error {
	stages := make([]models.StageTemplate, 0, len(items))
	for i, it := range items {
		field := fmt.Sprintf("stageTemplates[%d]", i)
		if it.DayOffset == nil {
			return models.NewValidationError(field+".dayOffset", "is required")
		}
		if *it.DayOffset < 0 {
			return models.NewValidationError(field+".dayOffset", "must be non-negative")
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			return models.NewValidationError(field+".title", "is required")
		}
		message := strings.TrimSpace(it.Message)
		if message == "" {
			return models.NewValidationError(field+".message", "is required")
		}
		stages = append(stages, models.StageTemplate{DayOffset: *it.DayOffset, Title: title, Message: message})
	}

	if s.repo == nil {
		return models.ErrStorageUnavailable
	}
	return s.repo.ReplaceStageTemplates(ctx, stages)
}

func (s *Service) publish(ctx context.Context, typ string, sh *models.Shipment) {
	if s.pub == nil || s.topic == "" {
		return
	}
	b, err := json.Marshal(messages.ShipmentEvent{
		Type:         typ,
		ShipmentID:   sh.ID,
		Code:         sh.Code,
		Status:       sh.Status,
		Name:         sh.Name,
		Email:        sh.Email,
		Neighborhood: sh.Neighborhood,
		PostalCode:   sh.PostalCode,
		OccurredAt:   s.now(),
	})
	if err != nil {
		slog.Error("marshal shipment event", "error", err.Error())
		return
	}
	if err := s.pub.Publish(ctx, s.topic, []byte(sh.Code), b); err != nil {
		slog.Warn("publish shipment event", "type", typ, "code", sh.Code, "error", err.Error())
	}
}

// FallbackTracking отдаётся в режиме без БД, в форме, которую ждёт фронтенд.
// Статус записан так, как его показывала старая заглушка, а не как в БД.
func FallbackTracking() *models.Tracking {
	return &models.Tracking{
		PackageInfo: models.PackageInfo{
			Recipient:         "Cliente",
			Origin:            "Origem",
			Destination:       "Destino",
			EstimatedDelivery: "2025-12-31",
			Status:            fallbackStatus,
		},
		Events: []models.Event{},
	}
}
