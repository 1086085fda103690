package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"staffdesk/internal/app/server"
	"staffdesk/internal/domain/auth"
	"staffdesk/internal/domain/staff"
	"staffdesk/internal/platform/config"
	"staffdesk/internal/platform/jobs"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func testConfig() config.Config {
	return config.Config{
		Addr:               ":0",
		Environment:        "test",
		FrontendDir:        "frontend/dist",
		JWTSecret:          "test-secret",
		DataEncryptionKey:  "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
		RecordStoreDriver:  config.StoreMemory,
		BlobDriver:         config.BlobMemory,
		RunSeed:            true,
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		SeedAdminName:      "Admin",
		EmailFrom:          "no-reply@test.local",
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		TransitionTimeout:  5 * time.Second,
		MetricsEnabled:     true,
	}
}

func call(t *testing.T, client *http.Client, method, url, token, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, url, err, raw)
		}
	}
	return resp.StatusCode, env
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	status, env := call(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	if status != http.StatusOK {
		t.Fatalf("login failed: %d", status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil || out.Token == "" {
		t.Fatalf("login response: %s %v", env.Data, err)
	}
	return out.Token
}

func TestStaffExitAndReturnJourney(t *testing.T) {
	cfg := testConfig()
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()

	id, err := app.Staff.Create(context.Background(), auth.SystemActor(), staff.Record{
		IDNo:      "E100",
		FirstName: "Asha",
		Status:    staff.StatusOnDuty,
		Salary:    "25000",
	})
	if err != nil {
		t.Fatalf("seed staff: %v", err)
	}

	ts := httptest.NewServer(app.Router)
	defer ts.Close()
	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	api := ts.URL + "/api/v1"

	status, env := call(t, client, http.MethodGet, api+"/staff/"+id, token, "")
	if status != http.StatusOK {
		t.Fatalf("get staff: %d", status)
	}
	var view staff.View
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.SensitiveMasked || view.Record.Salary != "25000" {
		t.Fatalf("super admin should see decrypted salary, got %+v", view)
	}

	status, _ = call(t, client, http.MethodPost, api+"/staff/"+id+"/removal", token, `{"reasonType":"Resign","comment":"Moved away"}`)
	if status != http.StatusOK {
		t.Fatalf("removal: %d", status)
	}
	status, _ = call(t, client, http.MethodPost, api+"/staff/"+id+"/return", token, `{"reasonType":"Good attitude","comment":"Welcome back"}`)
	if status != http.StatusOK {
		t.Fatalf("return: %d", status)
	}

	status, env = call(t, client, http.MethodGet, api+"/audit/lifecycle?staffId="+id, token, "")
	if status != http.StatusOK {
		t.Fatalf("audit feed: %d", status)
	}
	var feed []struct {
		Type       string `json:"type"`
		ReasonType string `json:"reasonType"`
	}
	if err := json.Unmarshal(env.Data, &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed) != 2 || feed[0].Type != "Return" || feed[1].Type != "Removal" {
		t.Fatalf("expected newest-first feed of two events, got %+v", feed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, env = call(t, client, http.MethodGet, api+"/jobs/runs?type="+jobs.JobNotify, token, "")
		var runs []jobs.Run
		_ = json.Unmarshal(env.Data, &runs)
		if status == http.StatusOK && len(runs) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected two notify runs, got %d (%d)", len(runs), status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The worker is sequential and the archive is queued before the removal
	// notification, so it has landed by now.
	status, env = call(t, client, http.MethodGet, api+"/staff/"+id+"/archives", token, "")
	if status != http.StatusOK || strings.Count(string(env.Data), `"key"`) != 2 {
		t.Fatalf("expected json and pdf archives, got %d %s", status, env.Data)
	}

	status, env = call(t, client, http.MethodGet, api+"/notifications/unread-count", token, "")
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"unread":2`) {
		t.Fatalf("unread count: %d %s", status, env.Data)
	}

	resp, err := client.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `outcome="committed"`) {
		t.Fatal("expected committed transitions in metrics output")
	}
}

func TestHealthAndAuthGuards(t *testing.T) {
	app, err := server.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()
	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: %d", path, resp.StatusCode)
		}
	}

	status, env := call(t, ts.Client(), http.MethodGet, ts.URL+"/api/v1/staff", "", "")
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "unauthorized" {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	status, _ = call(t, ts.Client(), http.MethodGet, ts.URL+"/api/v1/reasons", "", "")
	if status != http.StatusOK {
		t.Fatalf("reasons should be public, got %d", status)
	}
}
