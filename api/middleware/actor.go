package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/api/responses"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

const actorIDHeader = "X-Actor-Id"

// Actor trusts the X-Actor-Id header set by the upstream gateway. A missing header leaves
// the request anonymous; a malformed one is rejected.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(actorIDHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil || actorID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Actor-Id must be a uuid"))
				return
			}
			ctx := WithActorID(r.Context(), actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
