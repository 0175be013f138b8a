package controlplane_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"cwc/internal/app"
	"cwc/internal/config"
	"cwc/internal/controlplane"
	"cwc/internal/registry"
	"cwc/internal/session"
)

type memStore struct {
	records map[string]app.ServerRecord
}

func newMemStore() *memStore { return &memStore{records: make(map[string]app.ServerRecord)} }

func (m *memStore) Load() ([]app.ServerRecord, error) {
	out := make([]app.ServerRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}
func (m *memStore) Save(r app.ServerRecord) error { m.records[r.ID] = r; return nil }
func (m *memStore) Delete(id string) error        { delete(m.records, id); return nil }

type passthroughHasher struct{}

func (passthroughHasher) Hash(plain string) (string, error) { return "$1$abcdefgh$" + plain, nil }

var errNoDial = errors.New("dial refused")

type refusingDialer struct{}

func (refusingDialer) DialTimeout(context.Context, string, uint16, time.Duration) (net.Conn, error) {
	return nil, errNoDial
}

type alwaysActiveViewers struct{}

func (alwaysActiveViewers) HasActiveViewer() bool { return true }

func testDeps() controlplane.SessionDeps {
	return controlplane.SessionDeps{
		Dialer:  refusingDialer{},
		Viewers: alwaysActiveViewers{},
		NewTimeoutReader: func(c net.Conn) app.TimeoutReader {
			return nil
		},
	}
}

func waitForState(t *testing.T, sess *session.Session, want session.State) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if sess.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session never reached state %v, stuck at %v", want, sess.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCreateServerStartsASession(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plane, err := controlplane.New(ctx, store, passthroughHasher{}, nil, nil, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg, err := plane.CreateServer(config.ServerConfig{Hostname: "card.example", Enabled: true, Password: "pw"})
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	sess, ok := plane.Session(cfg.ID)
	if !ok {
		t.Fatalf("expected a session to exist for %s", cfg.ID)
	}
	waitForState(t, sess, session.StateBackoff)

	if _, ok := plane.Bindings(cfg.ID); !ok {
		t.Fatalf("expected a binding set to exist for %s", cfg.ID)
	}

	plane.Shutdown()
}

func TestUpdateServerReconfiguresLiveSession(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plane, err := controlplane.New(ctx, store, passthroughHasher{}, nil, nil, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg, _ := plane.CreateServer(config.ServerConfig{Hostname: "a.example", Enabled: true})
	sess, _ := plane.Session(cfg.ID)
	waitForState(t, sess, session.StateBackoff)

	newHost := "b.example"
	if _, err := plane.UpdateServer(cfg.ID, registry.UpdateFields{Hostname: &newHost}); err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	updated, err := plane.Get(cfg.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.Hostname != newHost {
		t.Fatalf("hostname = %s, want %s", updated.Hostname, newHost)
	}

	plane.Shutdown()
}

func TestDeleteServerTearsDownSession(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plane, err := controlplane.New(ctx, store, passthroughHasher{}, nil, nil, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg, _ := plane.CreateServer(config.ServerConfig{Hostname: "a.example"})
	if err := plane.DeleteServer(cfg.ID); err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}

	if _, ok := plane.Session(cfg.ID); ok {
		t.Fatalf("expected session removed after delete")
	}
	if _, ok := plane.Bindings(cfg.ID); ok {
		t.Fatalf("expected binding set removed after delete")
	}

	plane.Shutdown()
}
