package service

import (
	"context"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/mail"
	"github.com/pep-dortmund/member-database/internal/platform/tracer"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// EventView is the registration page payload: the event summary plus the
// renderable form fields.
type EventView struct {
	models.EventSummary
	Fields []schemaform.Descriptor `json:"fields"`
}

// ListEvents returns open events with their occupancy. Organizers holding
// the preview capability also see closed events.
func (s *Service) ListEvents(ctx context.Context) (summaries []models.EventSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "events.list")
	defer func() { span.End(err) }()

	openOnly := !s.organizerCan(ctx, authz.CapViewRegistration)
	return s.store.ListEvents(ctx, openOnly)
}

// GetEvent resolves an event by id or shortlink and builds its registration
// page. Closed events are only visible to organizers with the preview
// capability.
func (s *Service) GetEvent(ctx context.Context, ref string) (view *EventView, err error) {
	ctx, span := s.tracer.Start(ctx, "events.get", tracer.String("event", ref))
	defer func() { span.End(err) }()

	event, err := s.eventByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !event.RegistrationOpen && !s.organizerCan(ctx, authz.CapViewRegistration) {
		return nil, errRegistrationClosed
	}

	form, err := s.compileForm(event)
	if err != nil {
		return nil, err
	}
	count, err := s.capacity.ConfirmedCount(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	free, err := s.capacity.FreePlaces(ctx, event)
	if err != nil {
		return nil, err
	}

	return &EventView{
		EventSummary: models.EventSummary{
			Event:          *event,
			ConfirmedCount: count,
			FreePlaces:     free,
		},
		Fields: form.Describe(),
	}, nil
}

// CreateEvent stores a new event after gating its questionnaire through the
// meta-schema check. An empty shortlink defaults to the name without spaces.
func (s *Service) CreateEvent(ctx context.Context, event *models.Event) (err error) {
	ctx, span := s.tracer.Start(ctx, "events.create")
	defer func() { span.End(err) }()

	if trimmed(event.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "event name must not be empty")
	}
	if event.RegistrationSchema != nil {
		if err := schemaform.CheckSchema(event.RegistrationSchema); err != nil {
			return err
		}
	}
	if event.Shortlink == "" {
		event.Shortlink = models.DefaultShortlink(event.Name)
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return err
	}
	s.logger.Info("event created", "event_id", event.ID, "name", event.Name)
	return nil
}

// UpdateEvent replaces an event's settings. Used by organizers to adjust
// capacity or open and close the registration window; existing admissions are
// never revisited.
func (s *Service) UpdateEvent(ctx context.Context, event *models.Event) (err error) {
	ctx, span := s.tracer.Start(ctx, "events.update", tracer.Int64("event_id", event.ID))
	defer func() { span.End(err) }()

	if trimmed(event.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "event name must not be empty")
	}
	if event.RegistrationSchema != nil {
		if err := schemaform.CheckSchema(event.RegistrationSchema); err != nil {
			return err
		}
	}
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return err
	}
	s.logger.Info("event updated", "event_id", event.ID)
	return nil
}

// UpdateSchema swaps the questionnaire of an existing event. Payloads of
// existing registrations stay as they were written; they are never
// revalidated against the new schema.
func (s *Service) UpdateSchema(ctx context.Context, eventID int64, schema *schemaform.Schema) (err error) {
	ctx, span := s.tracer.Start(ctx, "events.update_schema", tracer.Int64("event_id", eventID))
	defer func() { span.End(err) }()

	if err := schemaform.CheckSchema(schema); err != nil {
		return err
	}
	if err := s.store.UpdateSchema(ctx, eventID, schema); err != nil {
		return err
	}
	s.logger.Info("event schema updated", "event_id", eventID)
	return nil
}

// Participants lists every registration of an event with its person, for
// the organizer's overview.
func (s *Service) Participants(ctx context.Context, eventID int64) (participants []models.Participant, err error) {
	ctx, span := s.tracer.Start(ctx, "events.participants", tracer.Int64("event_id", eventID))
	defer func() { span.End(err) }()

	if _, err := s.store.FindEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, eventID)
}

// BulkMailRequest is an organizer mail to all confirmed participants.
type BulkMailRequest struct {
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	ReplyTo     string            `json:"reply_to"`
	Attachments []mail.Attachment `json:"attachments"`
}

// BulkMail queues one message blind-carbon-copied to every confirmed
// participant and returns the recipient count.
func (s *Service) BulkMail(ctx context.Context, eventID int64, req BulkMailRequest) (count int, err error) {
	ctx, span := s.tracer.Start(ctx, "events.bulk_mail", tracer.Int64("event_id", eventID))
	defer func() { span.End(err) }()

	if trimmed(req.Subject) == "" || trimmed(req.Body) == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "subject and body must not be empty")
	}
	event, err := s.store.FindEventByID(ctx, eventID)
	if err != nil {
		return 0, err
	}

	participants, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return 0, err
	}
	var bcc []string
	for _, p := range participants {
		if p.Status == models.StatusConfirmed {
			bcc = append(bcc, p.PersonEmail)
		}
	}
	if len(bcc) == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "event has no confirmed participants")
	}

	recipients := []string{s.cfg.MailSender}
	if req.ReplyTo != "" {
		recipients = []string{req.ReplyTo}
	}
	s.notifier.Enqueue(mail.Message{
		Subject:     req.Subject,
		Sender:      s.cfg.MailSender,
		Recipients:  recipients,
		Bcc:         bcc,
		ReplyTo:     req.ReplyTo,
		Body:        req.Body,
		Attachments: req.Attachments,
	})
	s.logger.Info("bulk mail queued", "event_id", event.ID, "recipients", len(bcc))
	return len(bcc), nil
}
