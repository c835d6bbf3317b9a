package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/txn2/tabular/pkg/handler"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/translate"
)

// mockHandler implements Handler for registry tests.
type mockHandler struct {
	kind         string
	name         string
	tables       []string
	config       map[string]any
	disconnected bool
}

func (m *mockHandler) Kind() string { return m.kind }
func (m *mockHandler) Name() string { return m.name }

func (m *mockHandler) Describe() handler.Descriptor {
	return handler.Descriptor{Name: m.kind, Version: "0.0.1", Kind: handler.KindData}
}

func (m *mockHandler) Connect(ctx context.Context) handler.Status {
	return handler.OK()
}

func (m *mockHandler) CheckConnection(ctx context.Context) handler.Status {
	return handler.OK()
}

func (m *mockHandler) Disconnect() error {
	m.disconnected = true
	return nil
}

func (m *mockHandler) Tables() []string { return m.tables }

func (m *mockHandler) Query(ctx context.Context, stmt query.Statement) (*translate.Result, error) {
	return &translate.Result{}, nil
}

func mockFactory(kind string) HandlerFactory {
	return func(name string, config map[string]any) (Handler, error) {
		return &mockHandler{kind: kind, name: name, config: config}, nil
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := &mockHandler{kind: "rest", name: "blog"}

	if err := r.Register(h); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	got, ok := r.Get("rest", "blog")
	if !ok {
		t.Fatal("Get() did not find registered handler")
	}
	if got.Name() != "blog" {
		t.Errorf("Get() name = %q", got.Name())
	}

	if _, ok := r.Get("rest", "missing"); ok {
		t.Error("Get() found unregistered handler")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockHandler{kind: "rest", name: "blog"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := r.Register(&mockHandler{kind: "rest", name: "blog"}); err == nil {
		t.Error("duplicate Register() should fail")
	}
	// Same name under a different kind is a distinct instance.
	if err := r.Register(&mockHandler{kind: "modelsrv", name: "blog"}); err != nil {
		t.Errorf("Register() under different kind failed: %v", err)
	}
}

func TestRegisterFactoryAndDescriptor(t *testing.T) {
	r := NewRegistry()
	desc := handler.Descriptor{Name: "rest", Version: "1.0.0", Kind: handler.KindData}
	r.RegisterFactory("rest", desc, mockFactory("rest"))

	got, ok := r.Descriptor("rest")
	if !ok {
		t.Fatal("Descriptor() not found")
	}
	if got.Version != "1.0.0" {
		t.Errorf("Descriptor() version = %q", got.Version)
	}
	if _, ok := r.Descriptor("ghost"); ok {
		t.Error("Descriptor() found unregistered kind")
	}
}

func TestCreateAndRegister(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("rest", handler.Descriptor{}, mockFactory("rest"))

	err := r.CreateAndRegister(HandlerConfig{
		Kind:   "rest",
		Name:   "blog",
		Config: map[string]any{"base_url": "http://example.test"},
	})
	if err != nil {
		t.Fatalf("CreateAndRegister() error: %v", err)
	}

	h, ok := r.Get("rest", "blog")
	if !ok {
		t.Fatal("created handler not registered")
	}
	if h.(*mockHandler).config["base_url"] != "http://example.test" {
		t.Error("factory did not receive the config")
	}
}

func TestCreateAndRegisterUnknownKind(t *testing.T) {
	r := NewRegistry()
	err := r.CreateAndRegister(HandlerConfig{Kind: "ghost", Name: "x"})
	if err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestCreateAndRegisterFactoryError(t *testing.T) {
	r := NewRegistry()
	wantErr := errors.New("bad config")
	r.RegisterFactory("rest", handler.Descriptor{}, func(name string, config map[string]any) (Handler, error) {
		return nil, wantErr
	})

	err := r.CreateAndRegister(HandlerConfig{Kind: "rest", Name: "x"})
	if !errors.Is(err, wantErr) {
		t.Errorf("CreateAndRegister() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestGetByKind(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		h := &mockHandler{kind: "rest", name: fmt.Sprintf("h%d", i)}
		if err := r.Register(h); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}
	if err := r.Register(&mockHandler{kind: "modelsrv", name: "m"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if got := r.GetByKind("rest"); len(got) != 3 {
		t.Errorf("GetByKind(rest) = %d handlers, want 3", len(got))
	}
	if got := r.All(); len(got) != 4 {
		t.Errorf("All() = %d handlers, want 4", len(got))
	}
}

func TestHandlerForTable(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockHandler{kind: "rest", name: "blog", tables: []string{"articles", "comments"}}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	kind, name, found := r.HandlerForTable("comments")
	if !found || kind != "rest" || name != "blog" {
		t.Errorf("HandlerForTable() = %q, %q, %v", kind, name, found)
	}

	if _, _, found := r.HandlerForTable("ghosts"); found {
		t.Error("HandlerForTable() found unexposed table")
	}
}

func TestClose(t *testing.T) {
	r := NewRegistry()
	handlers := []*mockHandler{
		{kind: "rest", name: "a"},
		{kind: "rest", name: "b"},
	}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	for _, h := range handlers {
		if !h.disconnected {
			t.Errorf("handler %s not disconnected", h.name)
		}
	}
}
