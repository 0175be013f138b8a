package app

// StatusNotifier publishes runtime status changes to the admin/REST
// notification bus. Payload mirrors the source protocol's notify("cwcStatus", ...).
type StatusNotifier interface {
	Notify(event string, payload map[string]any)
}
