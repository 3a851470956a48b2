package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/mail"
	"github.com/pep-dortmund/member-database/internal/members"
	"github.com/pep-dortmund/member-database/internal/platform/tracer"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	"github.com/pep-dortmund/member-database/internal/token"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Outcome classifies what a submit did, so the handler can pick the
// user-facing message without inspecting state transitions.
type Outcome string

const (
	OutcomeCreated              Outcome = "created"
	OutcomeAlreadyPending       Outcome = "already_pending"
	OutcomeAlreadyConfirmed     Outcome = "already_confirmed"
	OutcomeAlreadyWaitinglisted Outcome = "already_waitinglisted"
	OutcomeInvalid              Outcome = "invalid"
)

// SubmitRequest is a participant's registration attempt. Name and email are
// fixed fields; Data holds the questionnaire answers.
type SubmitRequest struct {
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Data  map[string]any `json:"data"`
}

// SubmitResult reports the submit outcome. FieldErrors is set only for
// OutcomeInvalid; RegistrationID only for OutcomeCreated.
type SubmitResult struct {
	Outcome        Outcome           `json:"outcome"`
	Status         models.Status     `json:"status,omitempty"`
	RegistrationID int64             `json:"-"`
	Message        string            `json:"message"`
	FieldErrors    schemaform.Errors `json:"field_errors,omitempty"`
}

var submitMessages = map[Outcome]string{
	OutcomeCreated:              "Confirmation mail sent. Open the link in it to complete your registration.",
	OutcomeAlreadyPending:       "You already signed up. Check your mails for the confirmation link.",
	OutcomeAlreadyConfirmed:     "Your registration is already confirmed.",
	OutcomeAlreadyWaitinglisted: "You are already on the waiting list.",
	OutcomeInvalid:              "Please correct the highlighted fields.",
}

var errRegistrationClosed = dErrors.New(dErrors.CodeRegistrationClosed, "registration for this event is closed")

// Submit validates the payload, creates the person and a pending
// registration, and mails the confirmation link. Submitting again for the
// same event and address changes nothing and reports the current status.
func (s *Service) Submit(ctx context.Context, eventRef string, req SubmitRequest) (result *SubmitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "events.submit", tracer.String("event", eventRef))
	defer func() { span.End(err) }()

	event, err := s.eventByRef(ctx, eventRef)
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

	normalized, fieldErrs := form.Validate(req.Data)
	if trimmed(req.Name) == "" {
		fieldErrs["name"] = "please tell us your name"
	}
	if !schemaform.ValidEmail(req.Email, s.emailDomain(event)) {
		msg := "not a valid email address"
		if event.ForceInstitutionalEmail {
			msg = fmt.Sprintf("please use your %s address", s.cfg.InstitutionalMailDomain)
		}
		fieldErrs["email"] = msg
	}
	if fieldErrs.Any() {
		return &SubmitResult{
			Outcome:     OutcomeInvalid,
			Message:     submitMessages[OutcomeInvalid],
			FieldErrors: fieldErrs,
		}, nil
	}

	person, _, err := s.persons.FindOrCreateByEmail(ctx, req.Email, trimmed(req.Name))
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode registration data")
	}

	reg, created, err := s.store.FindOrCreateRegistration(ctx, &models.Registration{
		EventID:  event.ID,
		PersonID: person.ID,
		Data:     payload,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		if s.metrics != nil {
			s.metrics.IncrementDuplicateSubmits()
		}
		outcome := outcomeForStatus(reg.Status)
		return &SubmitResult{
			Outcome: outcome,
			Status:  reg.Status,
			Message: submitMessages[outcome],
		}, nil
	}

	if err := s.sendConfirmation(person, reg, event, false); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementRegistrationsCreated()
	}
	s.logger.Info("registration created",
		"event_id", event.ID, "registration_id", reg.ID)

	return &SubmitResult{
		Outcome:        OutcomeCreated,
		Status:         models.StatusPending,
		RegistrationID: reg.ID,
		Message:        submitMessages[OutcomeCreated],
	}, nil
}

func outcomeForStatus(status models.Status) Outcome {
	switch status {
	case models.StatusConfirmed:
		return OutcomeAlreadyConfirmed
	case models.StatusWaitinglist:
		return OutcomeAlreadyWaitinglisted
	default:
		return OutcomeAlreadyPending
	}
}

func (s *Service) sendConfirmation(person *members.Person, reg *models.Registration, event *models.Event, edit bool) error {
	tok, err := s.tokens.Issue(token.PurposeRegistration, person.ID, reg.ID)
	if err != nil {
		return err
	}
	s.notifier.Enqueue(mail.Confirmation(
		s.cfg.MailSender, person.Name, person.Email, event.Name,
		s.confirmLink(tok), s.cancelLink(tok), edit))
	return nil
}

// ConfirmRequest optionally carries edited questionnaire answers. A nil Data
// means "just confirm", the GET case.
type ConfirmRequest struct {
	Data map[string]any `json:"data"`
}

// ConfirmResult is what the confirmation page renders: the settled status,
// the form with the stored answers, and any edit-validation errors.
type ConfirmResult struct {
	EventName   string                  `json:"event_name"`
	Status      models.Status           `json:"status"`
	JustDecided bool                    `json:"just_decided"`
	Fields      []schemaform.Descriptor `json:"fields"`
	Data        map[string]any          `json:"data"`
	FieldErrors schemaform.Errors       `json:"field_errors,omitempty"`
}

// Confirm settles a pending registration and, when edited answers are
// supplied, revalidates and stores them. Opening the link again never flips
// the earlier decision, so the operation is idempotent apart from data
// edits.
func (s *Service) Confirm(ctx context.Context, tok string, req ConfirmRequest) (result *ConfirmResult, err error) {
	ctx, span := s.tracer.Start(ctx, "events.confirm")
	defer func() { span.End(err) }()

	reg, person, event, err := s.resolveToken(ctx, tok)
	if err != nil {
		return nil, err
	}

	justDecided := false
	if reg.Status == models.StatusPending {
		status, err := s.capacity.DecideAdmission(ctx, reg.ID)
		if err != nil {
			return nil, err
		}
		reg.Status = status
		justDecided = true
		if s.metrics != nil {
			s.metrics.IncrementAdmissions(string(status))
		}
		s.logger.Info("registration decided",
			"event_id", event.ID, "registration_id", reg.ID, "status", status)
		s.notifyDecision(person, reg, event, tok)
	}

	form, err := s.compileForm(event)
	if err != nil {
		return nil, err
	}

	result = &ConfirmResult{
		EventName:   event.Name,
		Status:      reg.Status,
		JustDecided: justDecided,
		Fields:      form.Describe(),
	}

	if req.Data != nil {
		normalized, fieldErrs := form.Validate(req.Data)
		if fieldErrs.Any() {
			result.FieldErrors = fieldErrs
		} else {
			payload, err := json.Marshal(normalized)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode registration data")
			}
			if err := s.store.UpdateRegistrationData(ctx, reg.ID, payload); err != nil {
				return nil, err
			}
			reg.Data = payload
			if s.metrics != nil {
				s.metrics.IncrementDataEdits()
			}
		}
	}

	if len(reg.Data) > 0 {
		if err := json.Unmarshal(reg.Data, &result.Data); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode registration data")
		}
	}
	return result, nil
}

func (s *Service) notifyDecision(person *members.Person, reg *models.Registration, event *models.Event, tok string) {
	admitted := reg.Status == models.StatusConfirmed
	s.notifier.Enqueue(mail.Outcome(
		s.cfg.MailSender, person.Name, person.Email, event.Name,
		admitted, s.confirmLink(tok), s.cancelLink(tok)))
	if event.NotifyEmail != "" {
		s.notifier.Enqueue(mail.OrganizerNotification(
			s.cfg.MailSender, event.NotifyEmail, event.Name,
			person.Name, person.Email, string(reg.Status)))
	}
}

// Cancel removes the registration behind the token. Cancellation is only
// possible while registration is open; a freed place stays free, nobody is
// promoted from the waiting list.
func (s *Service) Cancel(ctx context.Context, tok string) (err error) {
	ctx, span := s.tracer.Start(ctx, "events.cancel")
	defer func() { span.End(err) }()

	reg, _, event, err := s.resolveToken(ctx, tok)
	if err != nil {
		return err
	}
	if !event.RegistrationOpen {
		return dErrors.New(dErrors.CodeRegistrationClosed,
			"registration is closed, please contact the organizers to withdraw")
	}
	if err := s.store.DeleteRegistration(ctx, reg.ID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementCancellations()
	}
	s.logger.Info("registration canceled",
		"event_id", event.ID, "registration_id", reg.ID)
	return nil
}

// Resend re-issues the confirmation link for a single registration. The
// registration itself is left untouched; a decided one gets the edit wording.
func (s *Service) Resend(ctx context.Context, registrationID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "events.resend")
	defer func() { span.End(err) }()

	reg, err := s.store.FindRegistrationByID(ctx, registrationID)
	if err != nil {
		return err
	}
	person, err := s.persons.FindByID(ctx, reg.PersonID)
	if err != nil {
		return err
	}
	event, err := s.store.FindEventByID(ctx, reg.EventID)
	if err != nil {
		return err
	}
	edit := reg.Status != models.StatusPending
	if err := s.sendConfirmation(person, reg, event, edit); err != nil {
		return err
	}
	s.logger.Info("confirmation resent",
		"event_id", event.ID, "registration_id", reg.ID)
	return nil
}

// ResendConfirmations mails fresh links for every registration the address
// holds for events still open. Returns how many mails were queued.
func (s *Service) ResendConfirmations(ctx context.Context, email string) (count int, err error) {
	ctx, span := s.tracer.Start(ctx, "events.resend_all")
	defer func() { span.End(err) }()

	person, err := s.persons.FindByEmail(ctx, email)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "no open registrations for this address")
		}
		return 0, err
	}
	regs, err := s.store.ListOpenRegistrationsByPerson(ctx, person.ID)
	if err != nil {
		return 0, err
	}
	if len(regs) == 0 {
		return 0, dErrors.New(dErrors.CodeNotFound, "no open registrations for this address")
	}

	for i := range regs {
		reg := &regs[i]
		event, err := s.store.FindEventByID(ctx, reg.EventID)
		if err != nil {
			return count, err
		}
		// Decided registrations get the edit wording instead of another
		// call to confirm.
		edit := reg.Status != models.StatusPending
		if err := s.sendConfirmation(person, reg, event, edit); err != nil {
			return count, err
		}
		count++
	}
	s.logger.Info("confirmations resent", "person_id", person.ID, "count", count)
	return count, nil
}

// resolveToken verifies a registration link and loads the rows behind it.
// Any mismatch, including a token whose person does not own the
// registration, reads as an unknown link.
func (s *Service) resolveToken(ctx context.Context, tok string) (*models.Registration, *members.Person, *models.Event, error) {
	personID, regID, err := s.tokens.Verify(token.PurposeRegistration, tok)
	if err != nil {
		return nil, nil, nil, err
	}
	reg, err := s.store.FindRegistrationByID(ctx, regID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil, nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
		}
		return nil, nil, nil, err
	}
	if reg.PersonID != personID {
		return nil, nil, nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
	}
	person, err := s.persons.FindByID(ctx, personID)
	if err != nil {
		return nil, nil, nil, err
	}
	event, err := s.store.FindEventByID(ctx, reg.EventID)
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, person, event, nil
}
