package service

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/events/models"
	"github.com/pep-dortmund/member-database/internal/events/store"
	"github.com/pep-dortmund/member-database/internal/mail"
	"github.com/pep-dortmund/member-database/internal/members"
	"github.com/pep-dortmund/member-database/internal/schemaform"
	"github.com/pep-dortmund/member-database/internal/token"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// capturingNotifier records queued mail; safe for concurrent enqueues.
type capturingNotifier struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (n *capturingNotifier) Enqueue(msg mail.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *capturingNotifier) all() []mail.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]mail.Message(nil), n.messages...)
}

func (n *capturingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = nil
}

type WorkflowSuite struct {
	suite.Suite

	persons  *members.InMemoryPersonStore
	store    *store.InMemoryStore
	tokens   *token.Service
	notifier *capturingNotifier
	svc      *Service
}

func (s *WorkflowSuite) SetupTest() {
	s.persons = members.NewInMemoryStore()
	s.store = store.NewInMemoryStore(s.persons)
	s.tokens = token.New("test-secret")
	s.notifier = &capturingNotifier{}
	s.svc = NewService(s.store, s.persons, s.tokens, s.notifier, Config{
		BaseURL:                 "https://members.example.org",
		MailSender:              "events@example.org",
		InstitutionalMailDomain: "tu-dortmund.de",
	})
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) createEvent(event *models.Event) *models.Event {
	s.Require().NoError(s.store.CreateEvent(context.Background(), event))
	return event
}

func questionnaireSchema() *schemaform.Schema {
	return &schemaform.Schema{
		Type:     schemaform.TypeObject,
		Required: []string{"course"},
		Properties: []schemaform.Property{
			{Name: "course", Schema: &schemaform.Schema{
				Type: schemaform.TypeString,
				Enum: []string{"python", "latex"},
			}},
			{Name: "semester", Schema: &schemaform.Schema{Type: schemaform.TypeInteger}},
		},
	}
}

// submit registers the given address and returns the registration link token.
func (s *WorkflowSuite) submit(eventRef, name, email string, data map[string]any) string {
	result, err := s.svc.Submit(context.Background(), eventRef, SubmitRequest{
		Name: name, Email: email, Data: data,
	})
	s.Require().NoError(err)
	s.Require().Equal(OutcomeCreated, result.Outcome)

	person, err := s.persons.FindByEmail(context.Background(), email)
	s.Require().NoError(err)
	tok, err := s.tokens.Issue(token.PurposeRegistration, person.ID, result.RegistrationID)
	s.Require().NoError(err)
	return tok
}

func (s *WorkflowSuite) TestSubmitCreatesPendingRegistration() {
	event := s.createEvent(&models.Event{
		Name:               "Toolbox Workshop",
		RegistrationOpen:   true,
		RegistrationSchema: questionnaireSchema(),
	})

	result, err := s.svc.Submit(context.Background(), strconv.FormatInt(event.ID, 10), SubmitRequest{
		Name:  "Ada Lovelace",
		Email: "ada@example.org",
		Data:  map[string]any{"course": "python", "semester": 3},
	})
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
	s.Equal(models.StatusPending, result.Status)

	reg, err := s.store.FindRegistrationByID(context.Background(), result.RegistrationID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, reg.Status)
	s.Nil(reg.Timestamp)
	s.JSONEq(`{"course":"python","semester":3}`, string(reg.Data))

	messages := s.notifier.all()
	s.Require().Len(messages, 1)
	s.Contains(messages[0].Subject, "Confirm your registration")
	s.Equal([]string{"ada@example.org"}, messages[0].Recipients)
	s.Contains(messages[0].Body, "https://members.example.org/events/registration/")
	s.Contains(messages[0].Body, "https://members.example.org/events/cancel/")
}

func (s *WorkflowSuite) TestSubmitByShortlink() {
	s.createEvent(&models.Event{
		Name: "Sommerakademie", Shortlink: "sommer", RegistrationOpen: true,
	})
	result, err := s.svc.Submit(context.Background(), "sommer", SubmitRequest{
		Name: "Ada", Email: "ada@example.org",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
}

func (s *WorkflowSuite) TestSubmitRejectsInvalidPayload() {
	event := s.createEvent(&models.Event{
		Name:               "Toolbox Workshop",
		RegistrationOpen:   true,
		RegistrationSchema: questionnaireSchema(),
	})

	result, err := s.svc.Submit(context.Background(), strconv.FormatInt(event.ID, 10), SubmitRequest{
		Name:  "  ",
		Email: "not-an-address",
		Data:  map[string]any{"course": "fortran"},
	})
	s.Require().NoError(err)
	s.Equal(OutcomeInvalid, result.Outcome)
	s.Contains(result.FieldErrors, "name")
	s.Contains(result.FieldErrors, "email")
	s.Contains(result.FieldErrors, "course")

	// Nothing was persisted.
	participants, err := s.store.ListParticipants(context.Background(), event.ID)
	s.Require().NoError(err)
	s.Empty(participants)
	s.Empty(s.notifier.all())
}

func (s *WorkflowSuite) TestSubmitEnforcesInstitutionalDomain() {
	event := s.createEvent(&models.Event{
		Name:                    "Erstsemester",
		RegistrationOpen:        true,
		ForceInstitutionalEmail: true,
	})
	ref := strconv.FormatInt(event.ID, 10)

	result, err := s.svc.Submit(context.Background(), ref, SubmitRequest{
		Name: "Ada", Email: "ada@gmail.com",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeInvalid, result.Outcome)
	s.Contains(result.FieldErrors["email"], "tu-dortmund.de")

	result, err = s.svc.Submit(context.Background(), ref, SubmitRequest{
		Name: "Ada", Email: "ada.lovelace@tu-dortmund.de",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
}

func (s *WorkflowSuite) TestSubmitTwiceIsIdempotent() {
	event := s.createEvent(&models.Event{Name: "Stammtisch", RegistrationOpen: true})
	ref := strconv.FormatInt(event.ID, 10)

	first, err := s.svc.Submit(context.Background(), ref, SubmitRequest{
		Name: "Ada", Email: "ada@example.org",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, first.Outcome)

	second, err := s.svc.Submit(context.Background(), ref, SubmitRequest{
		Name: "Ada", Email: "ADA@example.org",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeAlreadyPending, second.Outcome)
	s.Equal(models.StatusPending, second.Status)

	// Only the first submit mails a confirmation.
	s.Len(s.notifier.all(), 1)
}

func (s *WorkflowSuite) TestSubmitClosedEvent() {
	event := s.createEvent(&models.Event{Name: "Vergangen", RegistrationOpen: false})
	ref := strconv.FormatInt(event.ID, 10)

	_, err := s.svc.Submit(context.Background(), ref, SubmitRequest{
		Name: "Ada", Email: "ada@example.org",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeRegistrationClosed))

	// An organizer with the preview capability can still exercise the form.
	ctx := authz.ContextWithOrganizer(context.Background(), &authz.Organizer{
		KeyID:        "orga",
		Capabilities: []authz.Capability{authz.CapViewRegistration},
	})
	result, err := s.svc.Submit(ctx, ref, SubmitRequest{Name: "Ada", Email: "ada@example.org"})
	s.Require().NoError(err)
	s.Equal(OutcomeCreated, result.Outcome)
}

func (s *WorkflowSuite) TestConfirmAdmitsUntilCapacity() {
	max := 2
	event := s.createEvent(&models.Event{
		Name:             "Laborführung",
		MaxParticipants:  &max,
		RegistrationOpen: true,
	})
	ref := strconv.FormatInt(event.ID, 10)

	var statuses []models.Status
	for _, email := range []string{"a@example.org", "b@example.org", "c@example.org"} {
		tok := s.submit(ref, "Person", email, nil)
		result, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
		s.Require().NoError(err)
		s.True(result.JustDecided)
		statuses = append(statuses, result.Status)
	}
	s.Equal([]models.Status{
		models.StatusConfirmed, models.StatusConfirmed, models.StatusWaitinglist,
	}, statuses)
}

func (s *WorkflowSuite) TestConfirmSendsOutcomeAndOrganizerMail() {
	event := s.createEvent(&models.Event{
		Name:             "Exkursion",
		NotifyEmail:      "orga@example.org",
		RegistrationOpen: true,
	})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org", nil)
	s.notifier.reset()

	_, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
	s.Require().NoError(err)

	messages := s.notifier.all()
	s.Require().Len(messages, 2)
	s.Contains(messages[0].Subject, "Registration confirmed")
	s.Equal([]string{"ada@example.org"}, messages[0].Recipients)
	s.Equal([]string{"orga@example.org"}, messages[1].Recipients)
}

func (s *WorkflowSuite) TestConfirmAgainKeepsDecisionButEditsData() {
	event := s.createEvent(&models.Event{
		Name:               "Toolbox Workshop",
		RegistrationOpen:   true,
		RegistrationSchema: questionnaireSchema(),
	})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org",
		map[string]any{"course": "python"})

	first, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
	s.Require().NoError(err)
	s.Require().Equal(models.StatusConfirmed, first.Status)
	s.notifier.reset()

	second, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{
		Data: map[string]any{"course": "latex", "semester": 5},
	})
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, second.Status)
	s.False(second.JustDecided)
	s.Empty(second.FieldErrors)
	s.Equal("latex", second.Data["course"])

	reg, err := s.store.FindRegistrationByID(context.Background(), s.registrationID(tok))
	s.Require().NoError(err)
	s.JSONEq(`{"course":"latex","semester":5}`, string(reg.Data))

	// No second outcome mail for an already-decided registration.
	s.Empty(s.notifier.all())
}

func (s *WorkflowSuite) registrationID(tok string) int64 {
	_, regID, err := s.tokens.Verify(token.PurposeRegistration, tok)
	s.Require().NoError(err)
	return regID
}

func (s *WorkflowSuite) TestConfirmRejectsInvalidEdit() {
	event := s.createEvent(&models.Event{
		Name:               "Toolbox Workshop",
		RegistrationOpen:   true,
		RegistrationSchema: questionnaireSchema(),
	})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org",
		map[string]any{"course": "python"})

	result, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{
		Data: map[string]any{"course": "fortran"},
	})
	s.Require().NoError(err)
	s.Contains(result.FieldErrors, "course")

	// The stored payload is untouched.
	reg, err := s.store.FindRegistrationByID(context.Background(), s.registrationID(tok))
	s.Require().NoError(err)
	s.JSONEq(`{"course":"python"}`, string(reg.Data))
	s.Equal("python", result.Data["course"])
}

func (s *WorkflowSuite) TestConfirmGarbageToken() {
	_, err := s.svc.Confirm(context.Background(), "not-a-token", ConfirmRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *WorkflowSuite) TestConfirmTokenForDeletedRegistration() {
	event := s.createEvent(&models.Event{Name: "Stammtisch", RegistrationOpen: true})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org", nil)

	s.Require().NoError(s.svc.Cancel(context.Background(), tok))

	_, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *WorkflowSuite) TestCancelRefusedWhenClosed() {
	event := s.createEvent(&models.Event{Name: "Exkursion", RegistrationOpen: true})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org", nil)

	// Close the registration window after the submit.
	stored, err := s.store.FindEventByID(context.Background(), event.ID)
	s.Require().NoError(err)
	stored.RegistrationOpen = false
	s.Require().NoError(s.svc.UpdateEvent(context.Background(), stored))

	err = s.svc.Cancel(context.Background(), tok)
	s.True(dErrors.HasCode(err, dErrors.CodeRegistrationClosed))

	_, err = s.store.FindRegistrationByID(context.Background(), s.registrationID(tok))
	s.NoError(err)
}

func (s *WorkflowSuite) TestCancelDoesNotPromoteWaitinglist() {
	max := 1
	event := s.createEvent(&models.Event{
		Name:             "Laborführung",
		MaxParticipants:  &max,
		RegistrationOpen: true,
	})
	ref := strconv.FormatInt(event.ID, 10)

	tokA := s.submit(ref, "A", "a@example.org", nil)
	tokB := s.submit(ref, "B", "b@example.org", nil)

	resA, err := s.svc.Confirm(context.Background(), tokA, ConfirmRequest{})
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, resA.Status)
	resB, err := s.svc.Confirm(context.Background(), tokB, ConfirmRequest{})
	s.Require().NoError(err)
	s.Equal(models.StatusWaitinglist, resB.Status)

	s.Require().NoError(s.svc.Cancel(context.Background(), tokA))

	// B keeps the waitinglist status; reopening the link does not admit.
	resB, err = s.svc.Confirm(context.Background(), tokB, ConfirmRequest{})
	s.Require().NoError(err)
	s.Equal(models.StatusWaitinglist, resB.Status)

	view, err := s.svc.GetEvent(context.Background(), ref)
	s.Require().NoError(err)
	s.Require().NotNil(view.FreePlaces)
	s.Equal(1, *view.FreePlaces)
}

func (s *WorkflowSuite) TestConcurrentConfirmsNeverOverAdmit() {
	max := 3
	event := s.createEvent(&models.Event{
		Name:             "Beschränkt",
		MaxParticipants:  &max,
		RegistrationOpen: true,
	})
	ref := strconv.FormatInt(event.ID, 10)

	tokens := make([]string, 10)
	for i := range tokens {
		email := "p" + strconv.Itoa(i) + "@example.org"
		tokens[i] = s.submit(ref, "P", email, nil)
	}

	var group errgroup.Group
	for _, tok := range tokens {
		group.Go(func() error {
			_, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
			return err
		})
	}
	s.Require().NoError(group.Wait())

	count, err := s.store.CountConfirmed(context.Background(), event.ID)
	s.Require().NoError(err)
	s.Equal(max, count)
}

func (s *WorkflowSuite) TestResendConfirmations() {
	open := s.createEvent(&models.Event{Name: "Open", RegistrationOpen: true})
	tok := s.submit(strconv.FormatInt(open.ID, 10), "Ada", "ada@example.org", nil)

	// One decided registration, one still pending for a second event.
	_, err := s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
	s.Require().NoError(err)
	second := s.createEvent(&models.Event{Name: "Second", RegistrationOpen: true})
	s.submit(strconv.FormatInt(second.ID, 10), "Ada", "ada@example.org", nil)
	s.notifier.reset()

	count, err := s.svc.ResendConfirmations(context.Background(), "ada@example.org")
	s.Require().NoError(err)
	s.Equal(2, count)

	messages := s.notifier.all()
	s.Require().Len(messages, 2)
	s.Contains(messages[0].Subject, "Edit your registration")
	s.Contains(messages[1].Subject, "Confirm your registration")
}

func (s *WorkflowSuite) TestResendSingleRegistration() {
	event := s.createEvent(&models.Event{Name: "Exkursion", RegistrationOpen: true})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org", nil)
	regID := s.registrationID(tok)
	s.notifier.reset()

	s.Require().NoError(s.svc.Resend(context.Background(), regID))

	messages := s.notifier.all()
	s.Require().Len(messages, 1)
	s.Contains(messages[0].Subject, "Confirm your registration")
	s.Equal([]string{"ada@example.org"}, messages[0].Recipients)

	// The registration itself stays pending.
	reg, err := s.store.FindRegistrationByID(context.Background(), regID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, reg.Status)

	// A decided registration gets the edit wording instead.
	_, err = s.svc.Confirm(context.Background(), tok, ConfirmRequest{})
	s.Require().NoError(err)
	s.notifier.reset()

	s.Require().NoError(s.svc.Resend(context.Background(), regID))
	messages = s.notifier.all()
	s.Require().Len(messages, 1)
	s.Contains(messages[0].Subject, "Edit your registration")
}

func (s *WorkflowSuite) TestResendUnknownRegistration() {
	err := s.svc.Resend(context.Background(), 12345)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WorkflowSuite) TestResendUnknownAddress() {
	_, err := s.svc.ResendConfirmations(context.Background(), "nobody@example.org")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WorkflowSuite) TestBulkMailReachesConfirmedOnly() {
	event := s.createEvent(&models.Event{Name: "Exkursion", RegistrationOpen: true})
	ref := strconv.FormatInt(event.ID, 10)

	tokA := s.submit(ref, "A", "a@example.org", nil)
	s.submit(ref, "B", "b@example.org", nil) // stays pending
	_, err := s.svc.Confirm(context.Background(), tokA, ConfirmRequest{})
	s.Require().NoError(err)
	s.notifier.reset()

	count, err := s.svc.BulkMail(context.Background(), event.ID, BulkMailRequest{
		Subject: "Treffpunkt",
		Body:    "Wir treffen uns um 9 Uhr.",
		ReplyTo: "orga@example.org",
	})
	s.Require().NoError(err)
	s.Equal(1, count)

	messages := s.notifier.all()
	s.Require().Len(messages, 1)
	s.Equal([]string{"a@example.org"}, messages[0].Bcc)
	s.Equal("orga@example.org", messages[0].ReplyTo)
}

func (s *WorkflowSuite) TestBulkMailWithoutConfirmed() {
	event := s.createEvent(&models.Event{Name: "Leer", RegistrationOpen: true})
	_, err := s.svc.BulkMail(context.Background(), event.ID, BulkMailRequest{
		Subject: "Hallo", Body: "Welt",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkflowSuite) TestCreateEventGatesSchema() {
	err := s.svc.CreateEvent(context.Background(), &models.Event{
		Name: "Kaputt",
		RegistrationSchema: &schemaform.Schema{
			Type: schemaform.TypeObject,
			Properties: []schemaform.Property{
				{Name: "x", Schema: &schemaform.Schema{Type: "telepathy"}},
			},
		},
	})
	s.Error(err)

	event := &models.Event{Name: "Summer School 2026", RegistrationOpen: true}
	s.Require().NoError(s.svc.CreateEvent(context.Background(), event))
	s.Equal("SummerSchool2026", event.Shortlink)
}

func (s *WorkflowSuite) TestUpdateSchemaDoesNotRevalidateOldData() {
	event := s.createEvent(&models.Event{
		Name:               "Toolbox Workshop",
		RegistrationOpen:   true,
		RegistrationSchema: questionnaireSchema(),
	})
	tok := s.submit(strconv.FormatInt(event.ID, 10), "Ada", "ada@example.org",
		map[string]any{"course": "python"})

	err := s.svc.UpdateSchema(context.Background(), event.ID, &schemaform.Schema{
		Type:     schemaform.TypeObject,
		Required: []string{"shirt"},
		Properties: []schemaform.Property{
			{Name: "shirt", Schema: &schemaform.Schema{
				Type: schemaform.TypeString, Enum: []string{"s", "m", "l"},
			}},
		},
	})
	s.Require().NoError(err)

	// The old payload stays readable even though it no longer matches.
	reg, err := s.store.FindRegistrationByID(context.Background(), s.registrationID(tok))
	s.Require().NoError(err)
	s.JSONEq(`{"course":"python"}`, string(reg.Data))
}

func (s *WorkflowSuite) TestListEventsHidesClosedFromAnonymous() {
	s.createEvent(&models.Event{Name: "Open", RegistrationOpen: true})
	s.createEvent(&models.Event{Name: "Closed", RegistrationOpen: false})

	public, err := s.svc.ListEvents(context.Background())
	s.Require().NoError(err)
	s.Len(public, 1)

	ctx := authz.ContextWithOrganizer(context.Background(), &authz.Organizer{
		KeyID:        "orga",
		Capabilities: []authz.Capability{authz.CapViewRegistration},
	})
	all, err := s.svc.ListEvents(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *WorkflowSuite) TestGetEventView() {
	event := s.createEvent(&models.Event{
		Name:               "Toolbox Workshop",
		RegistrationOpen:   true,
		RegistrationSchema: questionnaireSchema(),
	})

	view, err := s.svc.GetEvent(context.Background(), strconv.FormatInt(event.ID, 10))
	s.Require().NoError(err)
	s.Equal("Toolbox Workshop", view.Name)
	s.Require().Len(view.Fields, 2)
	s.Equal("course", view.Fields[0].Name)
	s.Equal("semester", view.Fields[1].Name)
	s.Nil(view.FreePlaces)
}
