package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowAndDeny(t *testing.T) {
	ok, err := AllowAll{}.Verify(context.Background(), "", "")
	if err != nil || !ok {
		t.Fatalf("AllowAll = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = DenyAll{}.Verify(context.Background(), "anything", "1.2.3.4")
	if err != nil || ok {
		t.Fatalf("DenyAll = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	if _, err := New("allow", "", "", 0); err != nil {
		t.Fatalf("New(allow) error: %v", err)
	}
	if _, err := New("deny", "", "", 0); err != nil {
		t.Fatalf("New(deny) error: %v", err)
	}
	if _, err := New("http", "https://example.test/verify", "s", time.Second); err != nil {
		t.Fatalf("New(http) error: %v", err)
	}
	if _, err := New("bogus", "", "", 0); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("New(bogus) error = %v, want ErrUnknownProvider", err)
	}
}

func TestHTTPVerifierPostsForm(t *testing.T) {
	var gotSecret, gotResponse, gotIP string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotSecret = r.PostFormValue("secret")
		gotResponse = r.PostFormValue("response")
		gotIP = r.PostFormValue("remoteip")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "sekrit", time.Second)
	ok, err := v.Verify(context.Background(), "solved", "10.0.0.1")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("Verify = false, want true")
	}
	if gotSecret != "sekrit" || gotResponse != "solved" || gotIP != "10.0.0.1" {
		t.Fatalf("form = (%q, %q, %q)", gotSecret, gotResponse, gotIP)
	}
}

func TestHTTPVerifierRejectsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "s", time.Second)
	ok, err := v.Verify(context.Background(), "stale", "")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("Verify = true, want false")
	}
}

func TestHTTPVerifierEmptyTokenShortCircuits(t *testing.T) {
	v := NewHTTPVerifier("http://127.0.0.1:1/verify", "s", time.Second)
	ok, err := v.Verify(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("empty token accepted")
	}
}

func TestHTTPVerifierProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "s", time.Second)
	if _, err := v.Verify(context.Background(), "token", ""); !errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("Verify error = %v, want ErrVerifierUnavailable", err)
	}
}
