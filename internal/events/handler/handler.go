// Package handler exposes the registration workflow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/events/service"
	"github.com/pep-dortmund/member-database/internal/platform/metrics"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	"github.com/pep-dortmund/member-database/internal/transport/httpjson"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Service defines the workflow operations the handler needs.
type Service interface {
	ListEvents(ctx context.Context) ([]models.EventSummary, error)
	GetEvent(ctx context.Context, ref string) (*service.EventView, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	UpdateEvent(ctx context.Context, event *models.Event) error
	UpdateSchema(ctx context.Context, eventID int64, schema *schemaform.Schema) error

	Submit(ctx context.Context, eventRef string, req service.SubmitRequest) (*service.SubmitResult, error)
	Confirm(ctx context.Context, tok string, req service.ConfirmRequest) (*service.ConfirmResult, error)
	Cancel(ctx context.Context, tok string) error
	Resend(ctx context.Context, registrationID int64) error
	ResendConfirmations(ctx context.Context, email string) (int, error)

	Participants(ctx context.Context, eventID int64) ([]models.Participant, error)
	BulkMail(ctx context.Context, eventID int64, req service.BulkMailRequest) (int, error)
}

// Handler handles event and registration endpoints.
type Handler struct {
	logger  *slog.Logger
	events  Service
	auth    authz.Authorizer
	metrics *metrics.Metrics
}

// New creates a new events Handler.
func New(events Service, auth authz.Authorizer, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		events:  events,
		auth:    auth,
		metrics: metrics,
	}
}

// Register mounts the event routes. Authentication middleware must already
// be in place; capability checks happen here.
func (h *Handler) Register(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.handleList)

		// Token-bearing participant routes; the static segments win over
		// the {ref} wildcard.
		r.Get("/registration/{token}/", h.handleConfirm)
		r.Post("/registration/{token}/", h.handleConfirm)
		r.Post("/cancel/{token}/", h.handleCancel)

		r.With(authz.Require(h.auth, authz.CapResendConfirmation)).
			Post("/resend/", h.handleResend)
		r.With(authz.Require(h.auth, authz.CapResendConfirmation)).
			Post("/resend/{id}/", h.handleResendOne)

		r.With(authz.Require(h.auth, authz.CapEditSchema)).
			Post("/", h.handleCreate)

		r.Get("/{ref}", h.handleGet)
		r.Post("/{ref}/registration/", h.handleSubmit)

		r.With(authz.Require(h.auth, authz.CapEditSchema)).
			Put("/{ref}/", h.handleUpdate)
		r.With(authz.Require(h.auth, authz.CapEditSchema)).
			Put("/{ref}/schema/", h.handleUpdateSchema)
		r.With(authz.Require(h.auth, authz.CapGetParticipants)).
			Get("/{ref}/participants/", h.handleParticipants)
		r.With(authz.Require(h.auth, authz.CapWriteEmail)).
			Post("/{ref}/mail/", h.handleBulkMail)
	})
}

func (h *Handler) observe(endpoint string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveEndpointLatency(endpoint, time.Since(start).Seconds())
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	defer h.observe("events_list", time.Now())

	summaries, err := h.events.ListEvents(r.Context())
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"events": summaries})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	defer h.observe("events_get", time.Now())

	view, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, view)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer h.observe("events_create", time.Now())

	event, err := httpjson.Decode[models.Event](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if err := h.events.CreateEvent(r.Context(), event); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, event)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	defer h.observe("events_update", time.Now())

	id, err := eventID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	event, err := httpjson.Decode[models.Event](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	event.ID = id
	if err := h.events.UpdateEvent(r.Context(), event); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, event)
}

type updateSchemaRequest struct {
	Schema *schemaform.Schema `json:"registration_schema"`
}

func (h *Handler) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	defer h.observe("events_update_schema", time.Now())

	id, err := eventID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	req, err := httpjson.Decode[updateSchemaRequest](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if req.Schema == nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "registration_schema is required"))
		return
	}
	if err := h.events.UpdateSchema(r.Context(), id, req.Schema); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer h.observe("registration_submit", time.Now())

	req, err := httpjson.Decode[service.SubmitRequest](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	result, err := h.events.Submit(r.Context(), chi.URLParam(r, "ref"), *req)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	status := http.StatusOK
	switch result.Outcome {
	case service.OutcomeCreated:
		status = http.StatusCreated
	case service.OutcomeInvalid:
		status = http.StatusUnprocessableEntity
	}
	httpjson.Write(w, status, result)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	defer h.observe("registration_confirm", time.Now())

	var req service.ConfirmRequest
	if r.Method == http.MethodPost {
		decoded, err := httpjson.Decode[service.ConfirmRequest](r)
		if err != nil {
			httpjson.WriteError(w, err)
			return
		}
		req = *decoded
	}
	result, err := h.events.Confirm(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if result.FieldErrors.Any() {
		status = http.StatusUnprocessableEntity
	}
	httpjson.Write(w, status, result)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	defer h.observe("registration_cancel", time.Now())

	if err := h.events.Cancel(r.Context(), chi.URLParam(r, "token")); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{
		"status": "canceled",
	})
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	defer h.observe("registration_resend", time.Now())

	req, err := httpjson.Decode[resendRequest](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	count, err := h.events.ResendConfirmations(r.Context(), req.Email)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]int{"resent": count})
}

func (h *Handler) handleResendOne(w http.ResponseWriter, r *http.Request) {
	defer h.observe("registration_resend", time.Now())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "registration id must be numeric"))
		return
	}
	if err := h.events.Resend(r.Context(), id); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]int{"resent": 1})
}

func (h *Handler) handleParticipants(w http.ResponseWriter, r *http.Request) {
	defer h.observe("participants_list", time.Now())

	id, err := eventID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	participants, err := h.events.Participants(r.Context(), id)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"participants": participants})
}

func (h *Handler) handleBulkMail(w http.ResponseWriter, r *http.Request) {
	defer h.observe("bulk_mail", time.Now())

	id, err := eventID(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	req, err := httpjson.Decode[service.BulkMailRequest](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	count, err := h.events.BulkMail(r.Context(), id, *req)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusAccepted, map[string]int{"recipients": count})
}

func eventID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ref"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "event id must be numeric")
	}
	return id, nil
}
