package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorMiddleware(t *testing.T) {
	actorID := uuid.New()
	var seen *uuid.UUID
	handler := Actor(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", nil)
	req.Header.Set("X-Actor-Id", actorID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
	require.NotNil(t, seen)
	assert.Equal(t, actorID, *seen)

	seen = nil
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/items", nil))
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.Nil(t, seen)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/items", nil)
	req.Header.Set("X-Actor-Id", "not-a-uuid")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
