package provisioning_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"axocore/internal/domain"
	"axocore/internal/provisioning"
)

type staticTokens struct {
	current  atomic.Value
	refresh  func() string
	refCount int32
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	return s.current.Load().(string), nil
}
func (s *staticTokens) Refresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.refCount, 1)
	fresh := s.refresh()
	s.current.Store(fresh)
	return fresh, nil
}

func newStaticTokens(initial string, refresh func() string) *staticTokens {
	s := &staticTokens{refresh: refresh}
	s.current.Store(initial)
	return s
}

func TestHTTPClientListDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/bob/devices" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good-token" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode([]domain.DeviceListEntry{{DeviceID: "b1"}, {DeviceID: "b2"}})
	}))
	defer srv.Close()

	tokens := newStaticTokens("good-token", func() string { return "good-token" })
	client := provisioning.New(srv.URL, srv.Client(), tokens)

	devices, err := client.ListDevices(context.Background(), "bob")
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	if len(devices) != 2 || devices[0] != "b1" || devices[1] != "b2" {
		t.Fatalf("unexpected devices: %v", devices)
	}
}

func TestHTTPClientRefreshesOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			t.Errorf("expected refreshed token on retry, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode([]domain.DeviceListEntry{})
	}))
	defer srv.Close()

	tokens := newStaticTokens("stale-token", func() string { return "fresh-token" })
	client := provisioning.New(srv.URL, srv.Client(), tokens)

	if _, err := client.ListDevices(context.Background(), "bob"); err != nil {
		t.Fatalf("list devices: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry after 401, got %d total calls", calls)
	}
	if atomic.LoadInt32(&tokens.refCount) != 1 {
		t.Fatalf("expected exactly one refresh, got %d", tokens.refCount)
	}
}

func TestHTTPClientPublishPreKeysAndRegisterDevice(t *testing.T) {
	var sawPublish, sawRegister bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/me/prekeys":
			sawPublish = true
			var bundle domain.PreKeyBundle
			if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
				t.Errorf("decode bundle: %v", err)
			}
			if bundle.Username != "alice" {
				t.Errorf("unexpected username in bundle: %q", bundle.Username)
			}
		case r.Method == http.MethodPost && r.URL.Path == "/me/device":
			sawRegister = true
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := newStaticTokens("tok", func() string { return "tok" })
	client := provisioning.New(srv.URL, srv.Client(), tokens)

	if err := client.PublishPreKeys(context.Background(), domain.PreKeyBundle{Username: "alice"}); err != nil {
		t.Fatalf("publish prekeys: %v", err)
	}
	if err := client.RegisterDevice(context.Background(), "alice", "a1"); err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := client.RemoveDevice(context.Background(), "alice", "a1"); err != nil {
		t.Fatalf("remove device: %v", err)
	}
	if !sawPublish || !sawRegister {
		t.Fatal("expected both publish and register requests to reach the server")
	}
}

func TestHTTPClientPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tokens := newStaticTokens("tok", func() string { return "tok" })
	client := provisioning.New(srv.URL, srv.Client(), tokens)

	if _, err := client.ListDevices(context.Background(), "bob"); err == nil {
		t.Fatal("expected a 500 response to surface as an error")
	}
}
