package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"EchoVault/core/auth"
)

func jsonRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterAndLogin(t *testing.T) {
	h := newTestHandler(&fakeSongRepo{}, newFakeObjectStore())

	rec := httptest.NewRecorder()
	h.RegisterHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/register",
		`{"username":"alice","password":"s3cret"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}

	var registered struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&registered); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, registered.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("token username = %q, want alice", claims.Username)
	}

	// Second registration with the same name must be rejected.
	rec = httptest.NewRecorder()
	h.RegisterHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/register",
		`{"username":"alice","password":"other"}`))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.LoginHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/login",
		`{"username":"alice","password":"s3cret"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.LoginHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/login",
		`{"username":"alice","password":"wrong"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password login status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.LoginHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/login",
		`{"username":"nobody","password":"s3cret"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user login status = %d, want 401", rec.Code)
	}
}

func TestAuthValidation(t *testing.T) {
	h := newTestHandler(&fakeSongRepo{}, newFakeObjectStore())

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `not json`},
		{"missing password", `{"username":"bob"}`},
		{"missing username", `{"password":"pw"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.RegisterHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/register", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("register status = %d, want 400", rec.Code)
			}

			rec = httptest.NewRecorder()
			h.LoginHandler(rec, jsonRequest(t, http.MethodPost, "/api/auth/login", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("login status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAuthMiddlewarePopulatesIdentity(t *testing.T) {
	h := newTestHandler(&fakeSongRepo{}, newFakeObjectStore())

	token, err := auth.GenerateToken(h.cfg.JWTSecret, 9, "carol")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var gotID int64
	var gotName string
	inner := func(w http.ResponseWriter, r *http.Request) {
		var err error
		if gotID, err = GetUserIDFromContext(r.Context()); err != nil {
			t.Errorf("GetUserIDFromContext: %v", err)
		}
		if gotName, err = GetUsernameFromContext(r.Context()); err != nil {
			t.Errorf("GetUsernameFromContext: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.AuthMiddleware(inner)(rec, req)

	if gotID != 9 || gotName != "carol" {
		t.Errorf("identity = %d/%q, want 9/carol", gotID, gotName)
	}

	// Without the middleware both lookups must fail.
	plain := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	if _, err := GetUserIDFromContext(plain.Context()); err == nil {
		t.Error("GetUserIDFromContext on a bare context must fail")
	}
	if _, err := GetUsernameFromContext(plain.Context()); err == nil {
		t.Error("GetUsernameFromContext on a bare context must fail")
	}
}
