package onebot

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:     server.URL,
		AccessToken: "secret",
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return client, server
}

func TestCallActionSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/set_online_status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id")
		}
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":null}`))
	})

	reply, err := client.CallAction(context.Background(), "set_online_status", map[string]any{"status": 10})
	if err != nil {
		t.Fatal(err)
	}
	if !reply.OK() {
		t.Errorf("expected explicit success, got %+v", reply)
	}
}

func TestCallActionEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.CallAction(context.Background(), "set_online_status", map[string]any{})
	if !IsNoResponse(err) {
		t.Errorf("expected no-response error, got %v", err)
	}
}

func TestCallActionConnectionRefused(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.CallAction(context.Background(), "get_login_info", map[string]any{})
	if !IsNoResponse(err) {
		t.Errorf("expected no-response error, got %v", err)
	}
}

func TestCallActionHTTPError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.CallAction(context.Background(), "set_online_status", map[string]any{})
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if IsNoResponse(err) {
		t.Error("a 500 with a body is a rejection, not a missing response")
	}
}

func TestCallActionMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0}garbage`))
	})

	reply, err := client.CallAction(context.Background(), "set_online_status", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Parsed() {
		t.Error("body with trailing garbage should not parse")
	}
	if !reply.LenientOK() {
		t.Error("lenient heuristic should accept a success envelope with trailing garbage")
	}
}

func TestCallActionExplicitRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","retcode":1400,"message":"bad request"}`))
	})

	reply, err := client.CallAction(context.Background(), "set_online_status", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if reply.OK() || !reply.Parsed() {
		t.Errorf("expected parsed rejection, got %+v", reply)
	}
	if reply.LenientOK() {
		t.Error("lenient heuristic accepted an explicit rejection")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error for empty BaseURL")
	}
}
