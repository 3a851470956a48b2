// Package handler exposes the person records over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/members"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	"github.com/pep-dortmund/member-database/internal/transport/httpjson"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Handler handles person endpoints. Creation is public, the same way event
// submits are; listing is an organizer operation.
type Handler struct {
	logger  *slog.Logger
	persons members.PersonStore
	auth    authz.Authorizer
}

func New(persons members.PersonStore, auth authz.Authorizer, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, persons: persons, auth: auth}
}

// Register mounts the person routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/persons", h.handleCreate)
	r.With(authz.Require(h.auth, authz.CapGetPersons)).
		Get("/persons", h.handleList)
}

type createRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := httpjson.Decode[createRequest](r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if req.Name == "" || !schemaform.ValidEmail(req.Email, "") {
		httpjson.WriteError(w, dErrors.New(dErrors.CodeValidation, "name and a valid email are required"))
		return
	}

	person, created, err := h.persons.FindOrCreateByEmail(r.Context(), req.Email, req.Name)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.InfoContext(r.Context(), "person created", "person_id", person.ID)
	}
	httpjson.Write(w, status, person)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	persons, err := h.persons.List(r.Context())
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"persons": persons})
}
