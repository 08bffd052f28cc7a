package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"meeting-todos-backend/pkg/config"
	"meeting-todos-backend/pkg/identity"
	"meeting-todos-backend/pkg/models"
	"meeting-todos-backend/pkg/utils"
)

type stubProvider struct {
	verifyErr error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) SignIn(ctx context.Context, credential string) (*identity.Identity, error) {
	return p.Verify(ctx, credential)
}

func (p *stubProvider) Verify(ctx context.Context, bearer string) (*identity.Identity, error) {
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return &identity.Identity{Subject: bearer}, nil
}

func (p *stubProvider) SignOut(ctx context.Context, id *identity.Identity) error { return nil }

type stubResolver struct {
	err error
}

func (r stubResolver) Resolve(ctx context.Context, id *identity.Identity) (*models.UserData, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &models.UserData{ID: id.Subject, Organisations: []string{}}, nil
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"Bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(r)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := RequireSession(r.Context())
		if err != nil {
			t.Errorf("RequireSession failed: %v", err)
		}
		seen = s.UserID()
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(provider identity.Provider, resolver stubResolver, header string) *httptest.ResponseRecorder {
		h := Authenticate(provider, resolver, zap.NewNop())(next)
		r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	t.Run("missing header", func(t *testing.T) {
		rec := serve(&stubProvider{}, stubResolver{}, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got %d want 401", rec.Code)
		}
	})

	t.Run("expired credential carries the code", func(t *testing.T) {
		expired := &identity.AuthError{Code: identity.CodeExpiredCredential, Message: "token expired"}
		rec := serve(&stubProvider{verifyErr: expired}, stubResolver{}, "Bearer old")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("got %d want 401", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Error == nil || resp.Error.Details != identity.CodeExpiredCredential {
			t.Errorf("unexpected error %+v", resp.Error)
		}
	})

	t.Run("profile failure", func(t *testing.T) {
		rec := serve(&stubProvider{}, stubResolver{err: errors.New("permission denied")}, "Bearer alice")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("got %d want 500", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Error == nil || resp.Error.Message != "Failed to load user data" {
			t.Errorf("unexpected error %+v", resp.Error)
		}
	})

	t.Run("session reaches the handler", func(t *testing.T) {
		seen = ""
		rec := serve(&stubProvider{}, stubResolver{}, "Bearer alice")
		if rec.Code != http.StatusNoContent || seen != "alice" {
			t.Errorf("got %d user %q", rec.Code, seen)
		}
	})
}

func TestRequireSessionWithoutManager(t *testing.T) {
	if _, err := RequireSession(context.Background()); err == nil {
		t.Error("expected an error without a session")
	}
}

func TestValidateJSON(t *testing.T) {
	schema := MustCompileSchema("test", `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"dueDate": {"type": "string", "format": "date"}
		}
	}`)

	var body string
	h := ValidateJSON(schema)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"valid", `{"title":"Write report","dueDate":"2025-03-01"}`, http.StatusOK, ""},
		{"missing title", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad date", `{"title":"x","dueDate":"tomorrow"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", `{"title":`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body = ""
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
			if rec.Code != tt.wantCode {
				t.Fatalf("got %d want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr == "" {
				if body != tt.body {
					t.Errorf("handler saw %q want %q", body, tt.body)
				}
				return
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("unexpected error %+v", resp.Error)
			}
		})
	}

	t.Run("details name the field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":""}`)))
		resp := decodeResponse(t, rec)
		if resp.Error == nil || !strings.Contains(resp.Error.Details, "/title") {
			t.Errorf("details do not mention /title: %+v", resp.Error)
		}
	})
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d want 400", rec.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("got %d want 200", rec.Code)
	}
}

func TestNormalize(t *testing.T) {
	var path string
	h := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	}))

	for in, want := range map[string]string{
		"/api/todos/":  "/api/todos",
		"/api/todos//": "/api/todos",
		"/":            "/",
		"/api/todos":   "/api/todos",
	} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, in, nil))
		if path != want {
			t.Errorf("Normalize(%q) = %q want %q", in, path, want)
		}
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	cfg := &config.Config{Environment: "production"}
	h := Recovery(cfg, zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/todos", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d want 500", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Details != "" {
		t.Errorf("production response leaked details: %+v", resp.Error)
	}
	if logs.FilterMessage("panic while serving request").Len() != 1 {
		t.Errorf("panic was not logged: %v", logs.All())
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	h := RequestLogger(logger)(Authenticate(&stubProvider{}, stubResolver{}, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	))

	r := httptest.NewRequest(http.MethodPost, "/api/todos", nil)
	r.Header.Set("Authorization", "Bearer alice")
	h.ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d request log entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusCreated) || fields["user"] != "alice" || fields["path"] != "/api/todos" {
		t.Errorf("unexpected fields %v", fields)
	}
}
