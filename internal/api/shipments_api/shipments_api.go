package shipments_api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error)
}

type ShipmentsAPI struct {
	svc *shipments.Service

	limiter        RateLimiter
	codesPerMinute int64
}

func New(svc *shipments.Service) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc}
}

// WithCodesRateLimit ограничивает POST /codes по IP клиента.
// limiter == nil или perMinute <= 0 выключают проверку.
func (a *ShipmentsAPI) WithCodesRateLimit(limiter RateLimiter, perMinute int) *ShipmentsAPI {
	if limiter == nil || perMinute <= 0 {
		return a
	}
	a.limiter = limiter
	a.codesPerMinute = int64(perMinute)
	return a
}

func (a *ShipmentsAPI) Register(r chi.Router) {
	r.Get("/health", a.Health)
	r.Get("/readyz", a.Ready)

	r.Post("/codes", a.GenerateCode)
	r.Post("/shipments", a.UpsertShipment)
	r.Get("/shipments", a.ListShipments)
	r.Get("/shipments/{code}", a.GetTracking)
	r.Get("/stageTemplates", a.ListStageTemplates)
	r.Post("/stageTemplates", a.ReplaceStageTemplates)

	a.registerLegacy(r)
}

func (a *ShipmentsAPI) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Ready проверяет зависимости. Режим без БД считается готовым,
// а вот настроенная, но недоступная БД нет. Лимитер только репортится:
// без Redis коды всё равно выдаются.
func (a *ShipmentsAPI) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	out := map[string]string{"storage": "ok", "rateLimiter": "disabled"}
	if a.svc.Degraded() {
		out["storage"] = "not configured"
	} else if err := a.svc.Ping(ctx); err != nil {
		slog.Warn("storage not ready", "error", err.Error())
		out["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if p, ok := a.limiter.(interface{ Ping(context.Context) error }); ok {
		out["rateLimiter"] = "ok"
		if err := p.Ping(ctx); err != nil {
			out["rateLimiter"] = err.Error()
		}
	}
	writeJSON(w, status, out)
}

// allowCodes пишет 429 и возвращает false, если лимит на выдачу кодов исчерпан.
func (a *ShipmentsAPI) allowCodes(w http.ResponseWriter, r *http.Request) bool {
	if a.limiter == nil {
		return true
	}
	ok, _, err := a.limiter.Allow(r.Context(), "codes:"+clientIP(r), a.codesPerMinute, time.Minute)
	if err != nil {
		// Redis недоступен, выдачу кодов не блокируем
		slog.Warn("rate limiter unavailable", "error", err.Error())
		return true
	}
	if !ok {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return false
	}
	return true
}

func (a *ShipmentsAPI) GenerateCode(w http.ResponseWriter, r *http.Request) {
	if !a.allowCodes(w, r) {
		return
	}

	code, err := a.svc.GenerateCode(r.Context())
	if err != nil {
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (a *ShipmentsAPI) UpsertShipment(w http.ResponseWriter, r *http.Request) {
	var in models.ShipmentInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sh, err := a.svc.UpsertShipment(r.Context(), in)
	if err != nil {
		a.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (a *ShipmentsAPI) ListShipments(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.ListRecentShipments(r.Context())
	if err != nil {
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ShipmentsAPI) GetTracking(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Track(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ShipmentsAPI) ListStageTemplates(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.ListStageTemplates(r.Context())
	if err != nil {
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ShipmentsAPI) ReplaceStageTemplates(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeBody(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := decodeStageTemplates(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ReplaceStageTemplates(r.Context(), items); err != nil {
		a.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// decodeStageTemplates принимает и голый массив, и обёртку {"stageTemplates": [...]}.
func decodeStageTemplates(raw json.RawMessage) ([]shipments.StageTemplateInput, error) {
	var items []shipments.StageTemplateInput
	if err := json.Unmarshal(raw, &items); err == nil && items != nil {
		return items, nil
	}

	var wrapper struct {
		StageTemplates []shipments.StageTemplateInput `json:"stageTemplates"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.StageTemplates == nil {
		return nil, errors.New("expected a list of stage templates")
	}
	return wrapper.StageTemplates, nil
}

// fail переводит доменную ошибку в HTTP-статус. fallback задаёт статус
// для прочих ошибок хранилища, он отличается у чтения и записи.
func (a *ShipmentsAPI) fail(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, models.ErrStorageUnavailable.Error())
	case errors.Is(err, models.ErrGenerationExhausted):
		writeError(w, http.StatusInternalServerError, models.ErrGenerationExhausted.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		writeError(w, fallback, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// clientIP берёт адрес TCP-пира. X-Forwarded-For сюда попадает только
// если роутер собран с доверенным прокси (middleware.RealIP).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
