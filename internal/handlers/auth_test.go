package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"spectroctl/internal/service"
)

func TestAuthHandlers_SignUpAndSignIn(t *testing.T) {
	auth := &mockAuth{signUpID: 3, genTokenToken: "tok-123"}
	s := &service.Service{Authorization: auth}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodPost, "/auth/sign-up", []byte(`{"username":"op1","password":"secret"}`), "")
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID int `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID != 3 {
		t.Fatalf("expected id 3, got %d", created.ID)
	}
	if auth.lastSignUpUsername != "op1" || auth.lastSignUpPassword != "secret" {
		t.Fatalf("credentials not forwarded: %q/%q", auth.lastSignUpUsername, auth.lastSignUpPassword)
	}

	w = doRequest(r, http.MethodPost, "/auth/sign-in", []byte(`{"username":"op1","password":"secret"}`), "")
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &session)
	if session.Token != "tok-123" {
		t.Fatalf("expected token, got %q", session.Token)
	}
}

func TestAuthHandlers_Failures(t *testing.T) {
	auth := &mockAuth{
		signUpErr:   errors.New("username taken"),
		genTokenErr: service.ErrInvalidPassword,
	}
	s := &service.Service{Authorization: auth}
	r := newTestRouter(s)

	// Missing fields → 400 from binding.
	w := doRequest(r, http.MethodPost, "/auth/sign-up", []byte(`{"username":"op1"}`), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/auth/sign-up", []byte(`{"username":"op1","password":"x"}`), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for repo error, got %d", w.Code)
	}

	// Bad credentials → 401 with a generic message.
	w = doRequest(r, http.MethodPost, "/auth/sign-in", []byte(`{"username":"op1","password":"wrong"}`), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "invalid credentials" {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
}
