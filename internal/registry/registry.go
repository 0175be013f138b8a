// Package registry is the set of configured card servers: load at
// startup, list/get/create/update/delete, and persistence back to the
// dtable, grounded on the teacher's generic
// session_management/repository.SessionRepository[T] +
// repository/wrappers.ConcurrentManager[T] pair — here specialized to
// config.ServerConfig instead of a generic session type, with a plain
// mutex standing in for the teacher's RWMutex wrapper since writes
// dominate reads in this domain (admin edits are rare, but every write
// touches the dtable).
package registry

import (
	"fmt"
	"strconv"
	"sync"

	"cwc/internal/app"
	"cwc/internal/config"
)

// Hooks lets an embedding layer (internal/controlplane) react to registry
// mutations without the registry importing session/binding types, the Go
// analogue of the source protocol's broadcast-then-react coupling.
type Hooks struct {
	OnCreate func(config.ServerConfig)
	OnUpdate func(config.ServerConfig)
	OnDelete func(id string)
}

// UpdateFields carries an update's partial field set: a nil pointer means
// "leave this field unchanged", matching cwc_config_entry_update's
// htsmsg_get_str/htsmsg_get_u32 "only apply if present" pattern.
type UpdateFields struct {
	Enabled    *bool
	Hostname   *string
	Port       *uint16
	Username   *string
	Password   *string
	Comment    *string
	DESKeyHex  *string
	EMMEnabled *bool
}

// ControlPlane is the admin-facing server registry: List/Get/Create/
// Update/Delete, as named directly in the external-interfaces surface.
type ControlPlane struct {
	mu       sync.Mutex
	store    app.ServerStore
	hasher   app.PasswordHasher
	notifier app.StatusNotifier
	logger   app.Logger
	hooks    Hooks

	configs map[string]config.ServerConfig
	nextID  int
}

// New loads the configured servers from store and returns a ready
// ControlPlane.
func New(store app.ServerStore, hasher app.PasswordHasher, notifier app.StatusNotifier, logger app.Logger, hooks Hooks) (*ControlPlane, error) {
	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("cwc: registry: load: %w", err)
	}

	cp := &ControlPlane{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
		configs:  make(map[string]config.ServerConfig, len(records)),
	}
	for _, rec := range records {
		cfg := config.FromRecord(rec)

		// The dtable persists the plaintext password but not its hash, so
		// it must be re-derived on every load, mirroring
		// cwc_entry_update's on-load cwc_krypt("$1$abcdefgh$") salt.
		if cfg.Password != "" {
			hashed, err := hasher.Hash(cfg.Password)
			if err != nil {
				return nil, fmt.Errorf("cwc: registry: hash password for id=%s: %w", cfg.ID, err)
			}
			cfg.PasswordHashed = hashed
		}

		cp.configs[cfg.ID] = cfg
		if n, err := strconv.Atoi(cfg.ID); err == nil && n >= cp.nextID {
			cp.nextID = n + 1
		}
	}
	return cp, nil
}

func (cp *ControlPlane) logf(format string, v ...any) {
	if cp.logger != nil {
		cp.logger.Printf(format, v...)
	}
}

func (cp *ControlPlane) notify(event string, cfg config.ServerConfig) {
	if cp.notifier == nil {
		return
	}
	cp.notifier.Notify(event, map[string]any{"id": cfg.ID, "enabled": cfg.Enabled, "connected": cfg.Connected})
}

// List returns every configured server, in no particular order.
func (cp *ControlPlane) List() []config.ServerConfig {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	out := make([]config.ServerConfig, 0, len(cp.configs))
	for _, cfg := range cp.configs {
		out = append(out, cfg)
	}
	return out
}

// Get returns one server's configuration by id.
func (cp *ControlPlane) Get(id string) (config.ServerConfig, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cfg, ok := cp.configs[id]
	if !ok {
		return config.ServerConfig{}, ErrServerNotFound
	}
	return cfg, nil
}

// Create assigns cfg a new monotonic numeric id, hashes its password if
// set, persists it, and returns the stored record.
func (cp *ControlPlane) Create(cfg config.ServerConfig) (config.ServerConfig, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cfg.ID = strconv.Itoa(cp.nextID)
	cp.nextID++

	if cfg.Password != "" {
		hashed, err := cp.hasher.Hash(cfg.Password)
		if err != nil {
			return config.ServerConfig{}, fmt.Errorf("cwc: registry: hash password: %w", err)
		}
		cfg.PasswordHashed = hashed
	}

	if err := cp.store.Save(config.ToRecord(cfg)); err != nil {
		return config.ServerConfig{}, fmt.Errorf("cwc: registry: save: %w", err)
	}
	cp.configs[cfg.ID] = cfg
	cp.logf("cwc: registry: created server id=%s host=%s", cfg.ID, cfg.Hostname)
	cp.notify("cwcServerCreated", cfg)

	if cp.hooks.OnCreate != nil {
		cp.hooks.OnCreate(cfg)
	}
	return cfg, nil
}

// Update applies fields to the server identified by id, recomputing the
// hashed password if the password changed, persists the result, and
// invokes Hooks.OnUpdate so the owning controlplane.Plane can reconfigure
// the live session.
func (cp *ControlPlane) Update(id string, fields UpdateFields) (config.ServerConfig, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cfg, ok := cp.configs[id]
	if !ok {
		return config.ServerConfig{}, ErrServerNotFound
	}

	if fields.Enabled != nil {
		cfg.Enabled = *fields.Enabled
	}
	if fields.Hostname != nil {
		cfg.Hostname = *fields.Hostname
	}
	if fields.Port != nil {
		cfg.Port = *fields.Port
	}
	if fields.Username != nil {
		cfg.Username = *fields.Username
	}
	if fields.Comment != nil {
		cfg.Comment = *fields.Comment
	}
	if fields.DESKeyHex != nil {
		cfg.DESKey = config.ParseDESKeyHex(*fields.DESKeyHex)
	}
	if fields.EMMEnabled != nil {
		cfg.EMMEnabled = *fields.EMMEnabled
	}
	if fields.Password != nil {
		cfg.Password = *fields.Password
		hashed, err := cp.hasher.Hash(cfg.Password)
		if err != nil {
			return config.ServerConfig{}, fmt.Errorf("cwc: registry: hash password: %w", err)
		}
		cfg.PasswordHashed = hashed
	}

	if err := cp.store.Save(config.ToRecord(cfg)); err != nil {
		return config.ServerConfig{}, fmt.Errorf("cwc: registry: save: %w", err)
	}
	cp.configs[id] = cfg
	cp.logf("cwc: registry: updated server id=%s host=%s", cfg.ID, cfg.Hostname)
	cp.notify("cwcServerUpdated", cfg)

	if cp.hooks.OnUpdate != nil {
		cp.hooks.OnUpdate(cfg)
	}
	return cfg, nil
}

// Delete removes the server identified by id.
func (cp *ControlPlane) Delete(id string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if _, ok := cp.configs[id]; !ok {
		return ErrServerNotFound
	}
	if err := cp.store.Delete(id); err != nil {
		return fmt.Errorf("cwc: registry: delete: %w", err)
	}
	delete(cp.configs, id)
	cp.logf("cwc: registry: deleted server id=%s", id)

	if cp.hooks.OnDelete != nil {
		cp.hooks.OnDelete(id)
	}
	return nil
}

// SetConnected updates a server's read-only connected flag, called by the
// owning controlplane.Plane when a session's connection state changes.
func (cp *ControlPlane) SetConnected(id string, connected bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cfg, ok := cp.configs[id]
	if !ok {
		return
	}
	cfg.Connected = connected
	cp.configs[id] = cfg
}
