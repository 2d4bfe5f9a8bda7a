package shipments_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type repo struct {
	byCode  map[string]*models.Shipment
	stages  []models.StageTemplate
	nextID  uint64
	now     time.Time
	failAll error
	pingErr error
}

func newRepo(now time.Time) *repo {
	return &repo{byCode: map[string]*models.Shipment{}, stages: models.DefaultStageTemplates(), now: now}
}

func (r *repo) Ping(ctx context.Context) error {
	return r.pingErr
}

func (r *repo) UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error) {
	if r.failAll != nil {
		return nil, r.failAll
	}
	sh, ok := r.byCode[in.Code]
	if !ok {
		r.nextID++
		sh = &models.Shipment{ID: r.nextID, Code: in.Code, Status: models.ShipmentStatusInTransit, CreatedAt: r.now}
		r.byCode[in.Code] = sh
	}
	sh.Name, sh.Email, sh.Phone = in.Name, in.Email, in.Phone
	sh.Street, sh.Number, sh.Neighborhood, sh.PostalCode = in.Street, in.Number, in.Neighborhood, in.PostalCode
	cp := *sh
	return &cp, nil
}

func (r *repo) GetShipmentByCode(ctx context.Context, code string) (*models.Shipment, error) {
	sh, ok := r.byCode[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (r *repo) ListRecentShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	if r.failAll != nil {
		return nil, r.failAll
	}
	out := make([]*models.Shipment, 0, len(r.byCode))
	for _, sh := range r.byCode {
		cp := *sh
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *repo) ShipmentCodeExists(ctx context.Context, code string) (bool, error) {
	_, ok := r.byCode[code]
	return ok, nil
}

func (r *repo) UpdateShipmentStatus(ctx context.Context, id uint64, status string) (bool, error) {
	for _, sh := range r.byCode {
		if sh.ID == id && sh.Status != status {
			sh.Status = status
			return true, nil
		}
	}
	return false, nil
}

func (r *repo) ListStageTemplates(ctx context.Context) ([]models.StageTemplate, error) {
	return append([]models.StageTemplate{}, r.stages...), nil
}

func (r *repo) ReplaceStageTemplates(ctx context.Context, stages []models.StageTemplate) error {
	r.stages = stages
	return nil
}

type limiter struct {
	calls   int
	err     error
	pingErr error
}

func (l *limiter) Ping(ctx context.Context) error {
	return l.pingErr
}

func (l *limiter) Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error) {
	l.calls++
	if l.err != nil {
		return false, 0, l.err
	}
	return int64(l.calls) <= limit, int64(l.calls), nil
}

func newServer(t *testing.T, svc *shipments.Service, lim RateLimiter) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(svc).WithCodesRateLimit(lim, 2).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

const shipmentBody = `{"code":"123 456 789","name":"Maria","email":"maria@example.com","phone":"11999990000",
"street":"Rua A","number":"10","neighborhood":"Centro","postalCode":"01000-000"}`

func TestShipmentsAPI_Flow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newRepo(now.Add(-48 * time.Hour))
	svc := shipments.New(r, nil, "").WithClock(func() time.Time { return now })
	srv := newServer(t, svc, nil)

	status, body := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true}`, string(body))

	status, body = do(t, srv, http.MethodPost, "/codes", "")
	require.Equal(t, http.StatusCreated, status)
	var code struct {
		Code          string `json:"code"`
		CodeFormatted string `json:"codeFormatted"`
	}
	require.NoError(t, json.Unmarshal(body, &code))
	require.Len(t, code.Code, 9)
	require.Equal(t, code.Code[:3]+" "+code.Code[3:6]+" "+code.Code[6:], code.CodeFormatted)

	status, body = do(t, srv, http.MethodPost, "/shipments", shipmentBody)
	require.Equal(t, http.StatusCreated, status, string(body))
	var sh models.Shipment
	require.NoError(t, json.Unmarshal(body, &sh))
	require.Equal(t, "123456789", sh.Code)

	// старый путь пишет туда же
	status, _ = do(t, srv, http.MethodPost, "/rastreamentos/manual", strings.Replace(legacyShipmentBody, "Rua A", "Rua B", 1))
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, r.byCode, 1)
	require.Equal(t, "Rua B", r.byCode["123456789"].Street)

	status, body = do(t, srv, http.MethodGet, "/shipments", "")
	require.Equal(t, http.StatusOK, status)
	var list []models.ShipmentSummary
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	require.Equal(t, "2025-03-08 12:00:00", list[0].CreatedAt)

	status, body = do(t, srv, http.MethodGet, "/shipments/123%20456%20789", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var tr models.Tracking
	require.NoError(t, json.Unmarshal(body, &tr))
	require.Len(t, tr.Events, 3)
	require.False(t, tr.PackageInfo.Delivered)
	require.Equal(t, "Rua B, 10 - Centro", tr.PackageInfo.Origin)

	status, _ = do(t, srv, http.MethodGet, "/rastreamentos/000000000", "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestShipmentsAPI_Validation(t *testing.T) {
	svc := shipments.New(newRepo(time.Now().UTC()), nil, "")
	srv := newServer(t, svc, nil)

	status, body := do(t, srv, http.MethodPost, "/shipments", `{"code":"123456789"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, string(body), "name")

	status, _ = do(t, srv, http.MethodPost, "/shipments", strings.Replace(shipmentBody, "123 456 789", "12345", 1))
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPost, "/shipments", `{not json`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodGet, "/shipments/%20%20", "")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestShipmentsAPI_StageTemplates(t *testing.T) {
	r := newRepo(time.Now().UTC())
	srv := newServer(t, shipments.New(r, nil, ""), nil)

	status, body := do(t, srv, http.MethodGet, "/stageTemplates", "")
	require.Equal(t, http.StatusOK, status)
	var got []models.StageTemplate
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 4)

	status, body = do(t, srv, http.MethodPost, "/stageTemplates",
		`[{"dayOffset":0,"title":"Postado","message":"ok"},{"dayOffset":2,"title":"Entregue","message":"fim"}]`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.Len(t, r.stages, 2)

	status, _ = do(t, srv, http.MethodPost, "/stageTemplates",
		`{"stageTemplates":[{"dayOffset":1,"title":"A","message":"a"}]}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, r.stages, 1)

	// один плохой элемент, набор не меняется
	for _, bad := range []string{
		`{"stageTemplates":[{"dayOffset":0,"title":"A","message":"a"},{"dayOffset":-1,"title":"B","message":"b"}]}`,
		`[{"dayOffset":"1","title":"A","message":"a"}]`,
		`[{"title":"A","message":"a"}]`,
		`{"other":[]}`,
		`{"etapas":[{"dayOffset":1,"title":"A","message":"a"}]}`,
		`null`,
	} {
		status, _ = do(t, srv, http.MethodPost, "/stageTemplates", bad)
		require.Equal(t, http.StatusBadRequest, status, bad)
	}
	require.Len(t, r.stages, 1)
	require.Equal(t, "A", r.stages[0].Title)
}

func TestShipmentsAPI_Degraded(t *testing.T) {
	srv := newServer(t, shipments.New(nil, nil, ""), nil)

	status, body := do(t, srv, http.MethodGet, "/shipments", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(body))

	status, body = do(t, srv, http.MethodGet, "/shipments/123456789", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"recipient":"Cliente"`)
	require.Contains(t, string(body), `"status":"Em Trânsito"`)

	status, body = do(t, srv, http.MethodGet, "/etapas", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "Saiu para entrega")

	status, body = do(t, srv, http.MethodPost, "/codes", "")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.JSONEq(t, `{"error":"DB not configured"}`, string(body))

	status, _ = do(t, srv, http.MethodPost, "/shipments", shipmentBody)
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = do(t, srv, http.MethodPost, "/stageTemplates", `[{"dayOffset":0,"title":"A","message":"a"}]`)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestShipmentsAPI_StorageErrors(t *testing.T) {
	r := newRepo(time.Now().UTC())
	r.failAll = errors.New("connection reset")
	srv := newServer(t, shipments.New(r, nil, ""), nil)

	status, body := do(t, srv, http.MethodPost, "/shipments", shipmentBody)
	require.Equal(t, http.StatusBadRequest, status)
	require.JSONEq(t, `{"error":"connection reset"}`, string(body))

	status, _ = do(t, srv, http.MethodGet, "/shipments", "")
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestShipmentsAPI_CodesRateLimit(t *testing.T) {
	lim := &limiter{}
	srv := newServer(t, shipments.New(newRepo(time.Now().UTC()), nil, ""), lim)

	for i := 0; i < 2; i++ {
		status, _ := do(t, srv, http.MethodPost, "/codes", "")
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := do(t, srv, http.MethodPost, "/rastreamentos/gerar", "")
	require.Equal(t, http.StatusTooManyRequests, status)

	// ошибка Redis не блокирует генерацию
	lim.err = errors.New("redis down")
	status, _ = do(t, srv, http.MethodPost, "/codes", "")
	require.Equal(t, http.StatusCreated, status)
}

func TestDecodeStageTemplates(t *testing.T) {
	items, err := decodeStageTemplates(json.RawMessage(`[]`))
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = decodeStageTemplates(json.RawMessage(`{"stageTemplates":[{"dayOffset":3,"title":"T","message":"M"}]}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 3, *items[0].DayOffset)
}

const legacyShipmentBody = `{"codigo":"123 456 789","nome":"Maria","email":"maria@example.com","telefone":"11999990000",
"rua":"Rua A","numero":"10","bairro":"Centro","cep":"01000-000"}`

func TestShipmentsAPI_LegacyPayloads(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newRepo(now.Add(-24 * time.Hour))
	srv := newServer(t, shipments.New(r, nil, "").WithClock(func() time.Time { return now }), nil)

	status, body := do(t, srv, http.MethodPost, "/rastreamentos/gerar", "")
	require.Equal(t, http.StatusCreated, status)
	var code map[string]string
	require.NoError(t, json.Unmarshal(body, &code))
	require.Len(t, code["codigo"], 9)
	require.Len(t, code["codigoFormatado"], 11)
	require.NotContains(t, code, "code")

	status, body = do(t, srv, http.MethodPost, "/rastreamentos/manual", legacyShipmentBody)
	require.Equal(t, http.StatusCreated, status, string(body))
	var row map[string]any
	require.NoError(t, json.Unmarshal(body, &row))
	require.Equal(t, "123456789", row["codigo"])
	require.Equal(t, "Maria", row["nome"])
	require.Equal(t, "11999990000", row["telefone"])
	require.Equal(t, "Centro", row["bairro"])
	require.Equal(t, "01000-000", row["cep"])
	require.Contains(t, row, "created_at")
	require.Equal(t, "11999990000", r.byCode["123456789"].Phone)

	status, body = do(t, srv, http.MethodPost, "/rastreamentos/manual", strings.Replace(legacyShipmentBody, `"11999990000"`, `""`, 1))
	require.Equal(t, http.StatusBadRequest, status)
	require.JSONEq(t, `{"error":"Campo obrigatório ausente: telefone"}`, string(body))

	status, body = do(t, srv, http.MethodPost, "/rastreamentos/manual", strings.Replace(legacyShipmentBody, "123 456 789", "12345", 1))
	require.Equal(t, http.StatusBadRequest, status)
	require.JSONEq(t, `{"error":"Código deve conter 9 dígitos"}`, string(body))

	status, body = do(t, srv, http.MethodGet, "/rastreamentos", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[{"nome":"Maria","codigo":"123456789","email":"maria@example.com",
"status":"Em trânsito","data":"2025-03-09 12:00:00"}]`, string(body))

	status, body = do(t, srv, http.MethodGet, "/rastreamentos/123456789", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"packageInfo"`)

	status, body = do(t, srv, http.MethodPost, "/etapas",
		`{"etapas":[{"dia":0,"titulo":"Postado","mensagem":"ok"},{"dia":2,"titulo":"Entregue","mensagem":"fim"}]}`)
	require.Equal(t, http.StatusOK, status, string(body))
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.Len(t, r.stages, 2)

	status, body = do(t, srv, http.MethodGet, "/etapas", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[{"dia":0,"titulo":"Postado","mensagem":"ok"},{"dia":2,"titulo":"Entregue","mensagem":"fim"}]`, string(body))

	for bad, msg := range map[string]string{
		`[{"dia":0,"titulo":"A","mensagem":"a"}]`:                "invalid JSON body",
		`{"etapas":{"dia":0}}`:                                   "etapas must be an array",
		`{"stageTemplates":[]}`:                                  "etapas must be an array",
		`{"etapas":[{"titulo":"A","mensagem":"a"}]}`:             "invalid etapa",
		`{"etapas":[{"dia":1,"titulo":"","mensagem":"a"}]}`:      "invalid etapa",
		`{"etapas":[{"dayOffset":1,"title":"A","message":"a"}]}`: "invalid etapa",
	} {
		status, body = do(t, srv, http.MethodPost, "/etapas", bad)
		require.Equal(t, http.StatusBadRequest, status, bad)
		require.JSONEq(t, `{"error":"`+msg+`"}`, string(body), bad)
	}
	require.Len(t, r.stages, 2)
}

func TestShipmentsAPI_Ready(t *testing.T) {
	r := newRepo(time.Now().UTC())
	lim := &limiter{}
	srv := newServer(t, shipments.New(r, nil, ""), lim)

	status, body := do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"storage":"ok","rateLimiter":"ok"}`, string(body))

	// Redis не держит готовность, коды выдаются и без него
	lim.pingErr = errors.New("redis down")
	status, body = do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"storage":"ok","rateLimiter":"redis down"}`, string(body))

	r.pingErr = errors.New("pg down")
	status, body = do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.JSONEq(t, `{"storage":"pg down","rateLimiter":"redis down"}`, string(body))

	srv = newServer(t, shipments.New(nil, nil, ""), nil)
	status, body = do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"storage":"not configured","rateLimiter":"disabled"}`, string(body))
}
