package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedHandler(t *testing.T, issuedAt time.Time) (*httpHandler, *auth.TokenIssuer, *observer.ObservedLogs) {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-secret"),
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return issuedAt },
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte("router-secret")})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return &httpHandler{validator: validator, logger: zap.New(core)}, issuer, logs
}

func runAuthorize(handler *httpHandler, header string) (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/entries", http.NoBody)
	if header != "" {
		request.Header.Set("Authorization", header)
	}
	ctx.Request = request
	handler.authorizeRequest(ctx)
	return recorder, ctx
}

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	handler, issuer, logs := newObservedHandler(t, time.Now().Add(-time.Hour))
	token, _, err := issuer.IssueToken("user-1", "ada")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	recorder, _ := runAuthorize(handler, "Bearer "+token)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entries[0].Level)
	}
	if entries[0].Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entries[0].Message)
	}
}

func TestAuthorizeRequestLogsForgedTokenAtWarnLevel(t *testing.T) {
	handler, _, logs := newObservedHandler(t, time.Now())
	forger, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte("other-secret")})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	token, _, err := forger.IssueToken("user-1", "ada")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	recorder, _ := runAuthorize(handler, "Bearer "+token)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
}

func TestAuthorizeRequestStoresUserID(t *testing.T) {
	handler, issuer, logs := newObservedHandler(t, time.Now())
	token, _, err := issuer.IssueToken("user-7", "grace")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	recorder, ctx := runAuthorize(handler, "Bearer "+token)

	if ctx.IsAborted() {
		t.Fatalf("expected request to pass, got status %d", recorder.Code)
	}
	if ctx.GetString(userIDContextKey) != "user-7" {
		t.Fatalf("unexpected user id %q", ctx.GetString(userIDContextKey))
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no log entries, got %d", logs.Len())
	}
}
