package mail

import "fmt"

// Message builders for the registration workflow. Kept here so wording lives
// in one place; the workflow only fills in names and links.

// Confirmation is the message sent right after submit. With edit=true the
// wording changes to the "edit your answers" variant used by resend after
// admission.
func Confirmation(sender, name, email, eventName, confirmLink, cancelLink string, edit bool) Message {
	subject := fmt.Sprintf("Confirm your registration for %s", eventName)
	action := "To complete your registration, open the confirmation link below.\nYou are only registered once you have confirmed."
	if edit {
		subject = fmt.Sprintf("Edit your registration for %s", eventName)
		action = "You can review and edit your answers using the link below."
	}

	body := fmt.Sprintf(`Hello %s,

you signed up for %s.

%s

%s

If you want to withdraw your registration, use this link:
%s
`, name, eventName, action, confirmLink, cancelLink)

	return Message{
		Subject:    subject,
		Sender:     sender,
		Recipients: []string{email},
		Body:       body,
	}
}

// Outcome is the admission result message sent after confirmation.
func Outcome(sender, name, email, eventName string, admitted bool, editLink, cancelLink string) Message {
	subject := fmt.Sprintf("Registration confirmed: %s", eventName)
	headline := "your registration is confirmed."
	if !admitted {
		subject = fmt.Sprintf("On the waiting list: %s", eventName)
		headline = "the event is currently full, so you are on the waiting list.\nWe will contact you if a place opens up."
	}

	body := fmt.Sprintf(`Hello %s,

%s

You can edit your answers for %s at any time:
%s

To withdraw your registration, use this link:
%s
`, name, headline, eventName, editLink, cancelLink)

	return Message{
		Subject:    subject,
		Sender:     sender,
		Recipients: []string{email},
		Body:       body,
	}
}

// OrganizerNotification tells the event's notification address about a new
// confirmed or wait-listed registration.
func OrganizerNotification(sender, notifyEmail, eventName, personName, personEmail, status string) Message {
	body := fmt.Sprintf(`New registration for "%s":

  %s <%s>
  status: %s
`, eventName, personName, personEmail, status)

	return Message{
		Subject:    fmt.Sprintf("New registration for %q", eventName),
		Sender:     sender,
		Recipients: []string{notifyEmail},
		Body:       body,
	}
}
