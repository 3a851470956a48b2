package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/pep-dortmund/member-database/internal/transport/httpjson"
	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

type organizerKey struct{}

// ContextWithOrganizer attaches an authenticated organizer to the context.
func ContextWithOrganizer(ctx context.Context, organizer *Organizer) context.Context {
	return context.WithValue(ctx, organizerKey{}, organizer)
}

// FromContext returns the authenticated organizer, or nil for anonymous
// participant requests.
func FromContext(ctx context.Context) *Organizer {
	if organizer, ok := ctx.Value(organizerKey{}).(*Organizer); ok {
		return organizer
	}
	return nil
}

// Authenticate resolves an optional "Authorization: Bearer keyID.secret"
// header into an organizer on the request context. Requests without the
// header pass through anonymously; participant endpoints stay public while
// still letting organizers be recognized (for example to preview a closed
// registration form).
func Authenticate(store OrganizerStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			organizer, err := resolve(r.Context(), store, header)
			if err != nil {
				httpjson.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithOrganizer(r.Context(), organizer)))
		})
	}
}

// Require rejects requests whose organizer lacks the capability. It must be
// mounted after Authenticate.
func Require(auth Authorizer, capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			organizer := FromContext(r.Context())
			if organizer == nil {
				httpjson.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "organizer credentials required"))
				return
			}
			if !auth.HasAccess(r.Context(), organizer, capability) {
				httpjson.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing capability"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolve(ctx context.Context, store OrganizerStore, header string) (*Organizer, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unsupported authorization scheme")
	}

	keyID, secret, ok := strings.Cut(raw, ".")
	if !ok || keyID == "" || secret == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}

	organizer, err := store.FindByKeyID(ctx, keyID)
	if err != nil {
		// Do not reveal whether the key id exists.
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	if err := VerifyKeySecret(secret, organizer.KeyHash); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	return organizer, nil
}
