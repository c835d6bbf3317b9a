package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/txn2/tabular/pkg/handler"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/registry"
	"github.com/txn2/tabular/pkg/translate"
)

func TestCheckerStates(t *testing.T) {
	hc := NewChecker()

	if hc.State() != "starting" || hc.IsReady() {
		t.Fatalf("initial state = %q, IsReady = %v", hc.State(), hc.IsReady())
	}

	hc.SetReady()
	if hc.State() != "ready" || !hc.IsReady() {
		t.Errorf("after SetReady: state = %q, IsReady = %v", hc.State(), hc.IsReady())
	}

	hc.SetDraining()
	if hc.State() != "draining" || hc.IsReady() {
		t.Errorf("after SetDraining: state = %q, IsReady = %v", hc.State(), hc.IsReady())
	}
}

func TestLivenessHandlerAlways200(t *testing.T) {
	hc := NewChecker()

	for _, setup := range []func(){func() {}, hc.SetReady, hc.SetDraining} {
		setup()
		w := httptest.NewRecorder()
		hc.LivenessHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
		if w.Code != http.StatusOK {
			t.Errorf("state %s: status = %d, want 200", hc.State(), w.Code)
		}
	}
}

func TestReadinessHandler(t *testing.T) {
	hc := NewChecker()

	w := httptest.NewRecorder()
	hc.ReadinessHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("starting status = %d, want 503", w.Code)
	}

	hc.SetReady()
	w = httptest.NewRecorder()
	hc.ReadinessHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", w.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("body status = %q", resp.Status)
	}
}

func TestCheckerConcurrentAccess(t *testing.T) {
	hc := NewChecker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hc.SetReady()
		}()
		go func() {
			defer wg.Done()
			_ = hc.IsReady()
			_ = hc.State()
		}()
	}
	wg.Wait()

	if s := hc.State(); s != "ready" {
		t.Errorf("State() = %q after concurrent SetReady", s)
	}
}

// probeHandler implements registry.Handler with a fixed probe outcome.
type probeHandler struct {
	kind, name string
	probeErr   error
}

func (p *probeHandler) Kind() string { return p.kind }
func (p *probeHandler) Name() string { return p.name }

func (p *probeHandler) Describe() handler.Descriptor {
	return handler.Descriptor{Name: p.kind, Kind: handler.KindData}
}

func (p *probeHandler) Connect(ctx context.Context) handler.Status { return handler.OK() }

func (p *probeHandler) CheckConnection(ctx context.Context) handler.Status {
	if p.probeErr != nil {
		return handler.Errored(p.probeErr)
	}
	return handler.OK()
}

func (p *probeHandler) Disconnect() error { return nil }
func (p *probeHandler) Tables() []string  { return nil }

func (p *probeHandler) Query(ctx context.Context, stmt query.Statement) (*translate.Result, error) {
	return nil, errors.New("not implemented")
}

func TestHandlersHandlerAllHealthy(t *testing.T) {
	reg := registry.NewRegistry()
	for _, name := range []string{"blog", "crm"} {
		if err := reg.Register(&probeHandler{kind: "rest", name: name}); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}

	w := httptest.NewRecorder()
	HandlersHandler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var statuses []handlerStatus
	if err := json.NewDecoder(w.Body).Decode(&statuses); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("entries = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Success || s.Error != "" {
			t.Errorf("entry = %+v", s)
		}
	}
}

func TestHandlersHandlerDegraded(t *testing.T) {
	reg := registry.NewRegistry()
	if err := reg.Register(&probeHandler{kind: "rest", name: "ok"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := reg.Register(&probeHandler{kind: "rest", name: "down", probeErr: errors.New("probe refused")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	w := httptest.NewRecorder()
	HandlersHandler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when any handler is failing", w.Code)
	}
	var statuses []handlerStatus
	if err := json.NewDecoder(w.Body).Decode(&statuses); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var foundErr bool
	for _, s := range statuses {
		if !s.Success && s.Error != "" {
			foundErr = true
		}
	}
	if !foundErr {
		t.Error("degraded handler error not reported")
	}
}

func TestHandlersHandlerEmptyRegistry(t *testing.T) {
	w := httptest.NewRecorder()
	HandlersHandler(registry.NewRegistry()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
