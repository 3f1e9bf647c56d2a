package middleware

import (
	"context"
	"net/http"

	"github.com/AdamBeresnev/league-brackets/internal/httputil"
	"github.com/AdamBeresnev/league-brackets/internal/utils"
	"github.com/google/uuid"
)

type ContextKey string

const UserIDKey ContextKey = "userID"

const (
	RequesterHeader = "X-User-ID"
	RequesterQuery  = "requesting_user_id"
)

// LoadRequester puts the acting user's id into the context when the request names one,
// either as ?requesting_user_id= or in the X-User-ID header. Accounts are managed
// elsewhere; this only carries the id to the permission checks.
func LoadRequester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := utils.StringOrNil(r.URL.Query().Get(RequesterQuery))
		if raw == nil {
			raw = utils.StringOrNil(r.Header.Get(RequesterHeader))
		}
		if raw == nil {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := uuid.Parse(*raw)
		if err != nil {
			httputil.BadRequest(w, "Invalid requesting user ID", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequireRequester rejects requests that do not name the acting user.
func RequireRequester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserIDFromContext(r.Context()); !ok {
			httputil.BadRequest(w, "requesting_user_id is required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, false
	}

	id, ok := val.(uuid.UUID)
	return id, ok
}
