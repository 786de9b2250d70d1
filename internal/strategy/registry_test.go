package strategy

import (
	"errors"
	"testing"

	"github.com/newthinker/replay/internal/core"
)

type mockStrategy struct {
	name    string
	initErr error
	inits   int
}

func (m *mockStrategy) Name() string        { return m.name }
func (m *mockStrategy) Description() string { return "mock strategy" }
func (m *mockStrategy) Init(cfg Config) error {
	m.inits++
	return m.initErr
}
func (m *mockStrategy) Decide(bar core.Bar, ctx *Context) core.Signal {
	return core.Hold()
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	registry := NewRegistry()
	registry.Register("mock", func() Strategy { return &mockStrategy{name: "mock"} })

	s, err := registry.New("mock", Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "mock" {
		t.Errorf("expected 'mock', got %s", s.Name())
	}
	if s.(*mockStrategy).inits != 1 {
		t.Errorf("expected Init to be called once")
	}
}

func TestRegistry_NewBuildsFreshInstances(t *testing.T) {
	registry := NewRegistry()
	registry.Register("mock", func() Strategy { return &mockStrategy{name: "mock"} })

	a, _ := registry.New("mock", Config{})
	b, _ := registry.New("mock", Config{})
	if a == b {
		t.Error("expected distinct instances")
	}
}

func TestRegistry_Unknown(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.New("missing", Config{})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestRegistry_InitFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register("bad", func() Strategy {
		return &mockStrategy{name: "bad", initErr: errors.New("fast must be below slow")}
	})

	_, err := registry.New("bad", Config{})
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	registry.Register("b", func() Strategy { return &mockStrategy{name: "b"} })
	registry.Register("a", func() Strategy { return &mockStrategy{name: "a"} })

	names := registry.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}
	if !registry.Has("a") || registry.Has("c") {
		t.Error("Has reported wrong membership")
	}
}

func TestConfig_Int(t *testing.T) {
	cfg := Config{Params: map[string]any{"a": 5, "b": int64(6), "c": float64(7), "d": 7.5, "e": "x", "f": "12"}}

	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"a", 5, false},
		{"b", 6, false},
		{"c", 7, false},
		{"d", 0, true},
		{"e", 0, true},
		{"f", 12, false},
		{"missing", 42, false},
	}
	for _, tt := range tests {
		got, err := cfg.Int(tt.key, 42)
		if (err != nil) != tt.wantErr {
			t.Errorf("Int(%s) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Int(%s) = %d, want %d", tt.key, got, tt.want)
		}
	}
}
