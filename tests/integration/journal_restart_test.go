package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/database"
	"github.com/MarcoPoloResearchLab/inkwell/internal/server"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signingSecret   = "integration-secret"
	jsonContentType = "application/json"
)

type runningServer struct {
	server   *httptest.Server
	registry *storage.Registry
	closeDB  func()
}

func startServer(testContext *testing.T, dataDir string) runningServer {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	authDB, err := database.OpenAuthStore(filepath.Join(dataDir, "auth.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open auth store: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: authDB})
	if err != nil {
		testContext.Fatalf("failed to build user service: %v", err)
	}
	registry, err := storage.NewRegistry(storage.RegistryConfig{DataDir: filepath.Join(dataDir, "stores"), Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build registry: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(signingSecret)})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Registry: registry,
		Users:    userService,
		Tokens:   issuer,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	return runningServer{
		server:   httptest.NewServer(handler),
		registry: registry,
		closeDB: func() {
			if sqlDB, err := authDB.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}
}

func (r runningServer) stop() {
	r.server.Close()
	_ = r.registry.Disconnect()
	r.closeDB()
}

func doJSON(testContext *testing.T, method, url, token string, body any, target any) int {
	testContext.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			testContext.Fatalf("failed to encode request: %v", err)
		}
	}
	request, err := http.NewRequest(method, url, &payload)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if target != nil && response.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			testContext.Fatalf("failed to decode response: %v", err)
		}
	}
	return response.StatusCode
}

func login(testContext *testing.T, baseURL string) string {
	testContext.Helper()
	var session struct {
		AccessToken string `json:"accessToken"`
	}
	credentials := map[string]string{"username": "ada", "password": "correct horse"}
	if status := doJSON(testContext, http.MethodPost, baseURL+"/session", "", credentials, &session); status != http.StatusOK {
		testContext.Fatalf("login failed with status %d", status)
	}
	return session.AccessToken
}

func TestJournalSurvivesServerRestart(testContext *testing.T) {
	dataDir := testContext.TempDir()

	first := startServer(testContext, dataDir)
	credentials := map[string]string{"username": "ada", "password": "correct horse"}
	if status := doJSON(testContext, http.MethodPost, first.server.URL+"/users", "", credentials, nil); status != http.StatusCreated {
		testContext.Fatalf("registration failed with status %d", status)
	}
	token := login(testContext, first.server.URL)

	var goal struct {
		ID string `json:"id"`
	}
	if status := doJSON(testContext, http.MethodPost, first.server.URL+"/goals", token, map[string]string{"title": "Write daily"}, &goal); status != http.StatusCreated {
		testContext.Fatalf("goal creation failed with status %d", status)
	}
	var child struct {
		ID string `json:"id"`
	}
	childPayload := map[string]string{"title": "Morning pages", "parentGoalId": goal.ID}
	if status := doJSON(testContext, http.MethodPost, first.server.URL+"/goals", token, childPayload, &child); status != http.StatusCreated {
		testContext.Fatalf("child goal creation failed with status %d", status)
	}
	var before json.RawMessage
	if status := doJSON(testContext, http.MethodGet, first.server.URL+"/export", token, nil, &before); status != http.StatusOK {
		testContext.Fatalf("export failed with status %d", status)
	}
	first.stop()

	second := startServer(testContext, dataDir)
	defer second.stop()
	token = login(testContext, second.server.URL)

	var children []struct {
		ID string `json:"id"`
	}
	if status := doJSON(testContext, http.MethodGet, second.server.URL+"/goals/"+goal.ID+"/children", token, nil, &children); status != http.StatusOK {
		testContext.Fatalf("children lookup failed with status %d", status)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		testContext.Fatalf("expected child %s after restart, got %v", child.ID, children)
	}

	var after json.RawMessage
	if status := doJSON(testContext, http.MethodGet, second.server.URL+"/export", token, nil, &after); status != http.StatusOK {
		testContext.Fatalf("export failed with status %d", status)
	}
	if !bytes.Equal(before, after) {
		testContext.Fatalf("expected export to be unchanged across restart")
	}
}
