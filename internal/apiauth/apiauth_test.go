package apiauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/manifold-labs/knowledgebase/internal/config"
)

func settingsWithSecret(secret string) *config.Settings {
	return &config.Settings{AuthRequired: true, JWTSecret: secret, JWTAlgorithm: "HS256"}
}

func signToken(t *testing.T, secret, subject string, expiry time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(expiry)}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidator_AcceptsValidToken(t *testing.T) {
	secret := "a-strong-secret-at-least-32-bytes-long"
	v := New(settingsWithSecret(secret))
	token := signToken(t, secret, "user-1", time.Now().Add(time.Hour))

	claims, err := v.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
}

func TestValidator_RejectsWrongSecret(t *testing.T) {
	v := New(settingsWithSecret("a-strong-secret-at-least-32-bytes-long"))
	token := signToken(t, "a-different-secret-at-least-32-bytes", "user-1", time.Now().Add(time.Hour))

	_, err := v.Validate(token)
	require.Error(t, err)
}

func TestValidator_RejectsExpiredToken(t *testing.T) {
	secret := "a-strong-secret-at-least-32-bytes-long"
	v := New(settingsWithSecret(secret))
	token := signToken(t, secret, "user-1", time.Now().Add(-time.Hour))

	_, err := v.Validate(token)
	require.Error(t, err)
}

func TestValidator_RejectsWrongAlgorithm(t *testing.T) {
	secret := "a-strong-secret-at-least-32-bytes-long"
	v := New(settingsWithSecret(secret))
	claims := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = v.Validate(signed)
	require.Error(t, err)
}

func TestMiddleware_NoopWhenAuthNotRequired(t *testing.T) {
	settings := &config.Settings{AuthRequired: false}
	called := false
	handler := Middleware(settings)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsMissingBearerToken(t *testing.T) {
	settings := settingsWithSecret("a-strong-secret-at-least-32-bytes-long")
	handler := Middleware(settings)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AttachesUserIDOnSuccess(t *testing.T) {
	secret := "a-strong-secret-at-least-32-bytes-long"
	settings := settingsWithSecret(secret)
	token := signToken(t, secret, "user-42", time.Now().Add(time.Hour))

	var seenUserID string
	handler := Middleware(settings)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-42", seenUserID)
}
