package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := New("test-secret")

	tok, err := svc.Issue(PurposeRegistration, 42, 7)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	personID, registrationID, err := svc.Verify(PurposeRegistration, tok)
	require.NoError(t, err)
	require.Equal(t, int64(42), personID)
	require.Equal(t, int64(7), registrationID)
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	svc := New("test-secret")

	tok, err := svc.Issue(PurposeRegistration, 42, 7)
	require.NoError(t, err)

	for _, purpose := range []Purpose{PurposeProfileEdit, PurposeDataExport, PurposePasswordReset} {
		_, _, err := svc.Verify(purpose, tok)
		require.Error(t, err, "purpose %s must not accept a registration token", purpose)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := New("test-secret")

	tok, err := svc.Issue(PurposeRegistration, 42, 7)
	require.NoError(t, err)

	tampered := tok[:len(tok)-2] + "xx"
	_, _, err = svc.Verify(PurposeRegistration, tampered)
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))

	_, _, err = svc.Verify(PurposeRegistration, "not-a-token")
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestVerifyRejectsDifferentSecret(t *testing.T) {
	tok, err := New("secret-a").Issue(PurposeRegistration, 1, 2)
	require.NoError(t, err)

	_, _, err = New("secret-b").Verify(PurposeRegistration, tok)
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestRegistrationTokensDoNotExpire(t *testing.T) {
	now := time.Now()
	issuer := New("test-secret", WithClock(func() time.Time { return now }))

	tok, err := issuer.Issue(PurposeRegistration, 42, 7)
	require.NoError(t, err)

	// Two years later the confirmation link still works.
	later := New("test-secret", WithClock(func() time.Time { return now.Add(2 * 365 * 24 * time.Hour) }))
	_, _, err = later.Verify(PurposeRegistration, tok)
	require.NoError(t, err)
}

func TestExpiringPurposes(t *testing.T) {
	now := time.Now()
	issuer := New("test-secret", WithClock(func() time.Time { return now }))

	tok, err := issuer.Issue(PurposePasswordReset, 42, 0)
	require.NoError(t, err)

	fresh := New("test-secret", WithClock(func() time.Time { return now.Add(30 * time.Minute) }))
	_, _, err = fresh.Verify(PurposePasswordReset, tok)
	require.NoError(t, err)

	stale := New("test-secret", WithClock(func() time.Time { return now.Add(2 * time.Hour) }))
	_, _, err = stale.Verify(PurposePasswordReset, tok)
	require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func TestTokenIsURLSafe(t *testing.T) {
	svc := New("test-secret")
	tok, err := svc.Issue(PurposeRegistration, 42, 7)
	require.NoError(t, err)
	require.NotContains(t, tok, "/")
	require.NotContains(t, tok, "+")
	require.False(t, strings.ContainsAny(tok, " \t\n"))
}
