package session

// Config is the runtime-relevant snapshot of a server record a session
// runs against; internal/controlplane maps an internal/config.ServerConfig
// into one of these (config.ToSessionConfig) at session start and at every
// reconfigure.
type Config struct {
	ID             string
	Hostname       string
	Port           uint16
	Username       string
	PasswordHashed string
	DESKey         [14]byte
	EMMEnabled     bool
}
