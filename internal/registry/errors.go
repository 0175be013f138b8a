package registry

import "errors"

// ErrServerNotFound is returned by Get/Update/Delete for an unknown id,
// grounded on the teacher's session_management/errors.go sentinel-error
// convention.
var ErrServerNotFound = errors.New("cwc: server not found")
