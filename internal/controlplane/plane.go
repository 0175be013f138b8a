// Package controlplane ties the registry, per-server sessions, and their
// descrambler bindings together behind one global mutex, the explicit
// "context object" the design notes substitute for the source protocol's
// process-wide server list plus condition variable
// (internal/controlplane.Plane, per the Global mutable registry -> explicit
// context object design note).
package controlplane

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cwc/internal/app"
	"cwc/internal/binding"
	"cwc/internal/config"
	"cwc/internal/emm"
	"cwc/internal/registry"
	"cwc/internal/session"
)

// SessionDeps collects the collaborators every session this Plane starts
// shares: dialer, logger, viewer-activity query, and the connection
// wrapper factory. Per-server fields (id, host, key, ...) come from the
// server's own config.ServerConfig.
type SessionDeps struct {
	Dialer           app.Dialer
	Logger           app.Logger
	Viewers          app.ViewerActivity
	NewTimeoutReader func(net.Conn) app.TimeoutReader
}

// Plane is the global coordinator: one goroutine per configured server,
// running under a shared parent context, plus the bindings for each.
type Plane struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	registry    *registry.ControlPlane
	sessionDeps SessionDeps
	notifier    app.StatusNotifier
	logger      app.Logger

	sessions    map[string]*session.Session
	cancels     map[string]context.CancelFunc
	bindingSets map[string]*binding.Set
}

// New builds a Plane over store's persisted servers, wiring registry
// mutations to session lifecycle via registry.Hooks, and starts a session
// goroutine for every server already on file.
func New(parent context.Context, store app.ServerStore, hasher app.PasswordHasher, notifier app.StatusNotifier, logger app.Logger, deps SessionDeps) (*Plane, error) {
	ctx, cancel := context.WithCancel(parent)
	p := &Plane{
		ctx:         ctx,
		cancel:      cancel,
		sessionDeps: deps,
		notifier:    notifier,
		logger:      logger,
		sessions:    make(map[string]*session.Session),
		cancels:     make(map[string]context.CancelFunc),
		bindingSets: make(map[string]*binding.Set),
	}

	hooks := registry.Hooks{
		OnCreate: p.onServerCreate,
		OnUpdate: p.onServerUpdate,
		OnDelete: p.onServerDelete,
	}
	reg, err := registry.New(store, hasher, notifier, logger, hooks)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("cwc: controlplane: %w", err)
	}
	p.registry = reg

	for _, cfg := range reg.List() {
		p.startSession(cfg)
	}
	return p, nil
}

// List, Get, CreateServer, UpdateServer, and DeleteServer pass straight
// through to the registry; the registry's hooks (already wired in New)
// keep the live sessions in sync with every mutation.
func (p *Plane) List() []config.ServerConfig { return p.registry.List() }

func (p *Plane) Get(id string) (config.ServerConfig, error) { return p.registry.Get(id) }

func (p *Plane) CreateServer(cfg config.ServerConfig) (config.ServerConfig, error) {
	return p.registry.Create(cfg)
}

func (p *Plane) UpdateServer(id string, fields registry.UpdateFields) (config.ServerConfig, error) {
	return p.registry.Update(id, fields)
}

func (p *Plane) DeleteServer(id string) error {
	return p.registry.Delete(id)
}

// Session returns the running session for id, if one exists.
func (p *Plane) Session(id string) (*session.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	return s, ok
}

// EMMTargets returns every live session as an emm.Target, the fan-out
// candidate list a global Conax EMM broadcast iterates.
func (p *Plane) EMMTargets() []emm.Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	targets := make([]emm.Target, 0, len(p.sessions))
	for _, sess := range p.sessions {
		targets = append(targets, sess)
	}
	return targets
}

// Bindings returns the descrambler binding set owned by server id, if one
// exists, so an embedding demux layer can route CA sections and packets.
func (p *Plane) Bindings(id string) (*binding.Set, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.bindingSets[id]
	return set, ok
}

func (p *Plane) connectedNotifier(id string) app.StatusNotifier {
	return connectedNotifier{plane: p, id: id, inner: p.notifier}
}

// connectedNotifier mirrors every session status event out to the real
// notifier while also reflecting the connected flag back into the
// registry's record, so List()/Get() report live state for the admin UI.
type connectedNotifier struct {
	plane *Plane
	id    string
	inner app.StatusNotifier
}

func (n connectedNotifier) Notify(event string, payload map[string]any) {
	if event == "cwcStatus" {
		if connected, ok := payload["connected"]; ok {
			n.plane.registry.SetConnected(n.id, connected == 1)
		}
	}
	if n.inner != nil {
		n.inner.Notify(event, payload)
	}
}

func (p *Plane) startSession(cfg config.ServerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sessions[cfg.ID]; exists {
		return
	}

	sessCtx, cancel := context.WithCancel(p.ctx)
	deps := session.Deps{
		Dialer:           p.sessionDeps.Dialer,
		Logger:           p.sessionDeps.Logger,
		Notifier:         p.connectedNotifier(cfg.ID),
		Viewers:          p.sessionDeps.Viewers,
		NewTimeoutReader: p.sessionDeps.NewTimeoutReader,
	}
	sess := session.New(config.ToSessionConfig(cfg), deps)
	set := binding.NewSet()
	sess.SetECMReplyHandler(set.Dispatch)

	p.sessions[cfg.ID] = sess
	p.cancels[cfg.ID] = cancel
	p.bindingSets[cfg.ID] = set

	if cfg.Enabled {
		sess.Enable()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = sess.Run(sessCtx)
	}()
}

func (p *Plane) onServerCreate(cfg config.ServerConfig) {
	p.startSession(cfg)
}

func (p *Plane) onServerUpdate(cfg config.ServerConfig) {
	p.mu.Lock()
	sess, ok := p.sessions[cfg.ID]
	p.mu.Unlock()
	if !ok {
		p.startSession(cfg)
		return
	}

	sess.Reconfigure(config.ToSessionConfig(cfg))
	if cfg.Enabled {
		sess.Enable()
	} else {
		sess.Disable()
	}
}

func (p *Plane) onServerDelete(id string) {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	cancel := p.cancels[id]
	set := p.bindingSets[id]
	delete(p.sessions, id)
	delete(p.cancels, id)
	delete(p.bindingSets, id)
	p.mu.Unlock()

	if ok {
		sess.Destroy()
	}
	if set != nil {
		set.Destroy()
	}
	if cancel != nil {
		cancel()
	}
}

// Shutdown destroys every session and waits for their goroutines to exit.
func (p *Plane) Shutdown() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.mu.Lock()
		sess := p.sessions[id]
		set := p.bindingSets[id]
		p.mu.Unlock()
		if sess != nil {
			sess.Destroy()
		}
		if set != nil {
			set.Destroy()
		}
	}
	p.cancel()
	p.wg.Wait()
}
