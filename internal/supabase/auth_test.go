package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignInWithPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("missing apikey header")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.co" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"expires_at":1900000000,
			"refresh_token":"ref","user":{"id":"11111111-1111-1111-1111-111111111111","email":"a@b.co","role":"authenticated"}}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL + "/", AnonKey: "anon"})
	resp, err := c.SignInWithPassword(context.Background(), "a@b.co", "Secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if resp.AccessToken != "tok" || resp.User.Email != "a@b.co" || resp.ExpiresAt != 1900000000 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSignUp_ConfirmationPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if data, _ := body["data"].(map[string]any); data["name"] != "Ada" {
			t.Errorf("name should be sent as metadata, got %+v", body)
		}
		w.Write([]byte(`{"id":"22222222-2222-2222-2222-222222222222","email":"ada@x.io","role":""}`))
	}))
	defer srv.Close()

	resp, err := New(Config{URL: srv.URL, AnonKey: "anon"}).SignUp(context.Background(), "ada@x.io", "Secret1", "Ada")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if resp.AccessToken != "" || resp.User.ID != "22222222-2222-2222-2222-222222222222" {
		t.Fatalf("expected user without session, got %+v", resp)
	}
}

func TestErrorShapes(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"invalid_grant","error_description":"Invalid login credentials"}`, "Invalid login credentials"},
		{`{"code":422,"msg":"User already registered"}`, "User already registered"},
		{`{"message":"JWT expired"}`, "JWT expired"},
		{`plain failure`, "plain failure"},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(tt.body))
		}))
		_, err := New(Config{URL: srv.URL}).GetUser(context.Background(), "tok")
		srv.Close()

		var authErr *Error
		if !errors.As(err, &authErr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if authErr.Status != http.StatusBadRequest || authErr.Message != tt.want {
			t.Fatalf("got %d %q, want %q", authErr.Status, authErr.Message, tt.want)
		}
	}
}

func TestGetUserSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"33333333-3333-3333-3333-333333333333","email":"u@x.io","role":"authenticated"}`))
	}))
	defer srv.Close()

	u, err := New(Config{URL: srv.URL, AnonKey: "anon"}).GetUser(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Email != "u@x.io" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestDeleteUserNeedsServiceKey(t *testing.T) {
	if err := New(Config{URL: "http://unused"}).DeleteUser(context.Background(), "x"); err == nil {
		t.Fatal("expected an error without a service key")
	}
}

func TestRecover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/recover" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if got := r.URL.Query().Get("redirect_to"); got != "https://app.example/reset-password" {
			t.Errorf("redirect_to = %q", got)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.co" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, AnonKey: "anon"})
	if err := c.Recover(context.Background(), "a@b.co", "https://app.example/reset-password"); err != nil {
		t.Fatalf("Recover: %v", err)
	}
}

func TestRecover_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"msg":"For security purposes, you can only request this once every 60 seconds"}`))
	}))
	defer srv.Close()

	err := New(Config{URL: srv.URL, AnonKey: "anon"}).Recover(context.Background(), "a@b.co", "")
	var sbErr *Error
	if !errors.As(err, &sbErr) || sbErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected a 429 *Error, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer recovery-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "NewPass1" || body["email"] != "" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"id":"33333333-3333-3333-3333-333333333333","email":"u@x.io","role":"authenticated"}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, AnonKey: "anon"})
	u, err := c.UpdateUser(context.Background(), "recovery-token", UserAttributes{Password: "NewPass1"})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if u.ID != "33333333-3333-3333-3333-333333333333" {
		t.Fatalf("unexpected user %+v", u)
	}

	if _, err := c.UpdateUser(context.Background(), "stale", UserAttributes{Password: "NewPass1"}); err == nil {
		t.Fatal("expected an error for a rejected token")
	}
}
