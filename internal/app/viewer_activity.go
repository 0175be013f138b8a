package app

// ViewerActivity reports whether any subscriber currently wants the
// services a server session feeds, the higher-level subscription-manager
// collaborator the reconnect backoff tiers consult.
type ViewerActivity interface {
	HasActiveViewer() bool
}
