// Package config maps the flat, persisted server record the dtable stores
// (app.ServerRecord) to and from the typed ServerConfig the rest of the
// module works with, grounded on the teacher's
// PAL/client_configuration.Configuration typed-struct-over-flat-file
// convention.
package config

import (
	"cwc/internal/app"
	"cwc/internal/session"
	"cwc/internal/settings"
)

// ServerConfig is the typed shape of one configured card server, as edited
// through the admin API and persisted via app.ServerStore.
type ServerConfig struct {
	ID             string
	Comment        string
	Hostname       string
	Port           uint16
	Enabled        bool
	Connected      bool
	Username       string
	Password       string
	PasswordHashed string
	DESKey         [settings.ConfiguredKeySize]byte
	EMMEnabled     bool
}

// FromRecord decodes a persisted ServerRecord into a ServerConfig.
func FromRecord(r app.ServerRecord) ServerConfig {
	return ServerConfig{
		ID:         r.ID,
		Comment:    r.Comment,
		Hostname:   r.Hostname,
		Port:       r.Port,
		Enabled:    r.Enabled,
		Connected:  r.Connected,
		Username:   r.Username,
		Password:   r.Password,
		DESKey:     ParseDESKeyHex(r.DESKeyHex),
		EMMEnabled: r.EMM,
	}
}

// ToRecord encodes cfg back into the flat persisted shape.
func ToRecord(cfg ServerConfig) app.ServerRecord {
	return app.ServerRecord{
		ID:        cfg.ID,
		Enabled:   cfg.Enabled,
		Connected: cfg.Connected,
		Hostname:  cfg.Hostname,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		DESKeyHex: FormatDESKeyHex(cfg.DESKey),
		EMM:       cfg.EMMEnabled,
		Comment:   cfg.Comment,
	}
}

// ToSessionConfig projects the fields a session.Session needs out of a
// ServerConfig.
func ToSessionConfig(cfg ServerConfig) session.Config {
	return session.Config{
		ID:             cfg.ID,
		Hostname:       cfg.Hostname,
		Port:           cfg.Port,
		Username:       cfg.Username,
		PasswordHashed: cfg.PasswordHashed,
		DESKey:         cfg.DESKey,
		EMMEnabled:     cfg.EMMEnabled,
	}
}
