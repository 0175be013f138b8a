package app

// PasswordHasher produces the DES-crypt-style "$1$abcdefgh$..." digest used
// as the session-key derivation input. The module never implements this
// itself; the hashing routine lives outside the core.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}
