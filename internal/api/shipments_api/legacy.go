package shipments_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/go-chi/chi/v5"
)

// Старый фронтенд ходит на /rastreamentos и /etapas с португальскими полями.
// Здесь только перевод DTO, логика общая с основными ручками.

type legacyCode struct {
	Codigo          string `json:"codigo"`
	CodigoFormatado string `json:"codigoFormatado"`
}

type legacyShipmentInput struct {
	Nome     string `json:"nome"`
	Email    string `json:"email"`
	Telefone string `json:"telefone"`
	Rua      string `json:"rua"`
	Numero   string `json:"numero"`
	Bairro   string `json:"bairro"`
	Cep      string `json:"cep"`
	Codigo   string `json:"codigo"`
}

func (in legacyShipmentInput) toModel() models.ShipmentInput {
	return models.ShipmentInput{
		Code:         in.Codigo,
		Name:         in.Nome,
		Email:        in.Email,
		Phone:        in.Telefone,
		Street:       in.Rua,
		Number:       in.Numero,
		Neighborhood: in.Bairro,
		PostalCode:   in.Cep,
	}
}

type legacyShipment struct {
	ID        uint64    `json:"id"`
	Codigo    string    `json:"codigo"`
	Nome      string    `json:"nome"`
	Email     string    `json:"email"`
	Telefone  string    `json:"telefone"`
	Rua       string    `json:"rua"`
	Numero    string    `json:"numero"`
	Bairro    string    `json:"bairro"`
	Cep       string    `json:"cep"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type legacySummary struct {
	Nome   string `json:"nome"`
	Codigo string `json:"codigo"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Data   string `json:"data"`
}

type legacyStage struct {
	ID       uint64 `json:"id,omitempty"`
	Dia      *int   `json:"dia"`
	Titulo   string `json:"titulo"`
	Mensagem string `json:"mensagem"`
}

// поля ShipmentInput в том виде, как их называл старый фронтенд
var legacyFieldNames = map[string]string{
	"code":         "codigo",
	"name":         "nome",
	"email":        "email",
	"phone":        "telefone",
	"street":       "rua",
	"number":       "numero",
	"neighborhood": "bairro",
	"postalCode":   "cep",
}

func (a *ShipmentsAPI) registerLegacy(r chi.Router) {
	r.Post("/rastreamentos/gerar", a.LegacyGenerateCode)
	r.Post("/rastreamentos/manual", a.LegacyUpsertShipment)
	r.Get("/rastreamentos", a.LegacyListShipments)
	// ответ трекинга у старого фронтенда такой же
	r.Get("/rastreamentos/{code}", a.GetTracking)
	r.Get("/etapas", a.LegacyListStageTemplates)
	r.Post("/etapas", a.LegacyReplaceStageTemplates)
}

func (a *ShipmentsAPI) LegacyGenerateCode(w http.ResponseWriter, r *http.Request) {
	if !a.allowCodes(w, r) {
		return
	}
	code, err := a.svc.GenerateCode(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrGenerationExhausted) {
			writeError(w, http.StatusInternalServerError, "Falha ao gerar código único")
			return
		}
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, legacyCode{Codigo: code.Raw, CodigoFormatado: code.Formatted})
}

func (a *ShipmentsAPI) LegacyUpsertShipment(w http.ResponseWriter, r *http.Request) {
	var in legacyShipmentInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sh, err := a.svc.UpsertShipment(r.Context(), in.toModel())
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, legacyValidationMessage(verr))
			return
		}
		a.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, legacyShipment{
		ID:        sh.ID,
		Codigo:    sh.Code,
		Nome:      sh.Name,
		Email:     sh.Email,
		Telefone:  sh.Phone,
		Rua:       sh.Street,
		Numero:    sh.Number,
		Bairro:    sh.Neighborhood,
		Cep:       sh.PostalCode,
		Status:    sh.Status,
		CreatedAt: sh.CreatedAt,
	})
}

// legacyValidationMessage: "Campo obrigatório ausente: telefone".
func legacyValidationMessage(verr *models.ValidationError) string {
	name, ok := legacyFieldNames[verr.Field]
	if !ok || verr.Message != shipments.MsgRequiredField {
		return verr.Message
	}
	return verr.Message + ": " + name
}

func (a *ShipmentsAPI) LegacyListShipments(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListRecentShipments(r.Context())
	if err != nil {
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	out := make([]legacySummary, 0, len(items))
	for _, it := range items {
		out = append(out, legacySummary{Nome: it.Name, Codigo: it.Code, Email: it.Email, Status: it.Status, Data: it.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ShipmentsAPI) LegacyListStageTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListStageTemplates(r.Context())
	if err != nil {
		a.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	out := make([]legacyStage, 0, len(items))
	for _, it := range items {
		dia := it.DayOffset
		out = append(out, legacyStage{ID: it.ID, Dia: &dia, Titulo: it.Title, Mensagem: it.Message})
	}
	writeJSON(w, http.StatusOK, out)
}

// LegacyReplaceStageTemplates принимает только {"etapas": [...]}.
func (a *ShipmentsAPI) LegacyReplaceStageTemplates(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Etapas json.RawMessage `json:"etapas"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var stages []legacyStage
	if err := json.Unmarshal(body.Etapas, &stages); err != nil || stages == nil {
		writeError(w, http.StatusBadRequest, "etapas must be an array")
		return
	}

	items := make([]shipments.StageTemplateInput, 0, len(stages))
	for _, st := range stages {
		items = append(items, shipments.StageTemplateInput{DayOffset: st.Dia, Title: st.Titulo, Message: st.Mensagem})
	}
	if err := a.svc.ReplaceStageTemplates(r.Context(), items); err != nil {
		if models.IsValidation(err) {
			writeError(w, http.StatusBadRequest, "invalid etapa")
			return
		}
		a.fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
