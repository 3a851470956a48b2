// Package service implements the registration workflow: schema-validated
// submits, double-opt-in confirmation with a single admission decision, and
// the organizer operations around them.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/events/store"
	"github.com/pep-dortmund/member-database/internal/mail"
	"github.com/pep-dortmund/member-database/internal/members"
	"github.com/pep-dortmund/member-database/internal/platform/metrics"
	"github.com/pep-dortmund/member-database/internal/platform/tracer"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	"github.com/pep-dortmund/member-database/internal/token"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// TokenService issues and checks the signed links mailed to participants.
type TokenService interface {
	Issue(purpose token.Purpose, personID, registrationID int64) (string, error)
	Verify(purpose token.Purpose, tok string) (personID, registrationID int64, err error)
}

// Notifier accepts outbound mail without blocking the request path.
type Notifier interface {
	Enqueue(msg mail.Message)
}

// Config carries the deployment-specific values the workflow needs to build
// links and messages.
type Config struct {
	// BaseURL is the public origin links are built against, without a
	// trailing slash.
	BaseURL string

	// MailSender is the From address of all workflow mail.
	MailSender string

	// InstitutionalMailDomain restricts participant addresses for events
	// with ForceInstitutionalEmail set.
	InstitutionalMailDomain string
}

type Option func(*Service)

// Service drives the registration lifecycle on top of the stores.
type Service struct {
	store      store.Store
	persons    members.PersonStore
	capacity   *CapacityController
	tokens     TokenService
	notifier   Notifier
	authorizer authz.Authorizer

	cfg Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

func NewService(st store.Store, persons members.PersonStore, tokens TokenService, notifier Notifier, cfg Config, opts ...Option) *Service {
	svc := &Service{
		store:      st,
		persons:    persons,
		capacity:   NewCapacityController(st),
		tokens:     tokens,
		notifier:   notifier,
		authorizer: authz.CapabilityAuthorizer{},
		cfg:        cfg,
		logger:     slog.Default(),
		tracer:     tracer.Noop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used to span workflow operations.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithAuthorizer overrides the capability check, for tests.
func WithAuthorizer(a authz.Authorizer) Option {
	return func(s *Service) {
		s.authorizer = a
	}
}

// eventByRef resolves an event by numeric id or by shortlink alias.
func (s *Service) eventByRef(ctx context.Context, ref string) (*models.Event, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.store.FindEventByID(ctx, id)
	}
	return s.store.FindEventByShortlink(ctx, ref)
}

func (s *Service) organizerCan(ctx context.Context, capability authz.Capability) bool {
	organizer := authz.FromContext(ctx)
	if organizer == nil {
		return false
	}
	return s.authorizer.HasAccess(ctx, organizer, capability)
}

func (s *Service) confirmLink(tok string) string {
	return s.cfg.BaseURL + "/events/registration/" + tok + "/"
}

func (s *Service) cancelLink(tok string) string {
	return s.cfg.BaseURL + "/events/cancel/" + tok + "/"
}

// compileForm turns the event's stored schema into a validating form. An
// event without a schema gets an empty form, so submits carry only name and
// email. A schema that no longer compiles is an organizer configuration
// problem, not a participant error.
func (s *Service) compileForm(event *models.Event) (*schemaform.Form, error) {
	schema := event.RegistrationSchema
	if schema == nil {
		schema = &schemaform.Schema{Type: schemaform.TypeObject}
	}
	form, err := schemaform.Compile(schema)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "event schema does not compile")
	}
	return form, nil
}

func (s *Service) emailDomain(event *models.Event) string {
	if event.ForceInstitutionalEmail {
		return s.cfg.InstitutionalMailDomain
	}
	return ""
}

func trimmed(value string) string { return strings.TrimSpace(value) }
