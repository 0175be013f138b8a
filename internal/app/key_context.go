package app

// KeyContext is the opaque FFdecsa-style block descrambler handle for one
// descrambler binding. The module never inspects its internals; it only
// feeds it control words and packet clusters.
type KeyContext interface {
	SetEvenControlWord(cw [8]byte)
	SetOddControlWord(cw [8]byte)

	// DecryptPackets decrypts as many complete 188-byte packets at the
	// front of cluster as the underlying descrambler can resolve with the
	// control words currently set, and returns how many were decrypted
	// in place.
	DecryptPackets(cluster []byte) (decrypted int, err error)

	Close() error
}

// KeyContextFactory creates KeyContext instances and reports the batch size
// the underlying descrambler prefers to work with.
type KeyContextFactory interface {
	New() (KeyContext, error)
	SuggestedClusterSize() int
}
