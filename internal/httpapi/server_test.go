package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type mockBroker struct{ ready bool }

func (m *mockBroker) Ready() bool { return m.ready }

type mockRegistry struct {
	pingErr error
	members []Member
}

func (m *mockRegistry) Ping(context.Context) error { return m.pingErr }
func (m *mockRegistry) ListActive(context.Context) ([]Member, error) {
	return m.members, nil
}

func newTestServer(brokerReady bool, registry Registry) *Server {
	return NewServer(":0", registry, &mockBroker{ready: brokerReady}, zap.NewNop())
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(false, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyz_BrokerNotReady(t *testing.T) {
	s := newTestServer(false, nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["broker"] != "not_ready" {
		t.Errorf("expected broker 'not_ready', got %v", checks["broker"])
	}
	if checks["registry"] != "disabled" {
		t.Errorf("expected registry 'disabled' with nil registry, got %v", checks["registry"])
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	s := newTestServer(true, &mockRegistry{})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyz_RegistryPingError(t *testing.T) {
	s := newTestServer(true, &mockRegistry{pingErr: context.DeadlineExceeded})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestProducers_DisabledWhenNoRegistry(t *testing.T) {
	s := newTestServer(true, nil)
	req := httptest.NewRequest(http.MethodGet, "/producers", nil)
	w := httptest.NewRecorder()

	s.handleProducers(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}

func TestProducers_ListsMembers(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := newTestServer(true, &mockRegistry{members: []Member{{Identity: "producer-1", LastSeen: now}}})
	req := httptest.NewRequest(http.MethodGet, "/producers", nil)
	w := httptest.NewRecorder()

	s.handleProducers(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var members []Member
	if err := json.NewDecoder(w.Body).Decode(&members); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(members) != 1 || members[0].Identity != "producer-1" {
		t.Fatalf("unexpected members: %+v", members)
	}
}
