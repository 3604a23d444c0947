//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gokatarajesh/certprep/internal/auth/jwt"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// moduleUnderTest returns the seeded module to run tests against.
func moduleUnderTest(t *testing.T) string {
	t.Helper()
	id := os.Getenv("INTEGRATION_MODULE_ID")
	if id == "" {
		t.Skip("INTEGRATION_MODULE_ID not set; seed a module with at least 10 questions first")
	}
	return id
}

// mintToken signs an access token with the server's secret for a fresh user.
func mintToken(t *testing.T, prefix string) (userID, token string) {
	t.Helper()
	manager := jwt.NewManager(jwt.TokenConfig{
		AccessSecret: []byte(envOrDefault("INTEGRATION_JWT_SECRET", "dev-secret")),
		Issuer:       envOrDefault("INTEGRATION_JWT_ISSUER", "certprep"),
	})
	userID = fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	token, err := manager.GenerateAccessToken(jwt.User{ID: userID, DisplayName: prefix})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return userID, token
}

func makeAuthenticatedRequest(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type sessionView struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Questions []struct {
		ID      string   `json:"id"`
		Options []string `json:"options"`
	} `json:"questions"`
}

func startSession(t *testing.T, baseURL, token, moduleID string, length int) sessionView {
	t.Helper()
	resp := makeAuthenticatedRequest(t, http.MethodPost,
		fmt.Sprintf("%s/v1/modules/%s/tests", baseURL, moduleID), token, map[string]int{"length": length})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("start session: unexpected status %d", resp.StatusCode)
	}
	var view sessionView
	decodeBody(t, resp, &view)
	return view
}
