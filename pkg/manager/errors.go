package manager

import "errors"

// Define static errors
var (
	// ErrManagerStopped is returned when scheduling against a stopped manager
	ErrManagerStopped = errors.New("cache manager is stopped")
	// ErrNamespaceDeleting is returned when scheduling a namespace whose
	// deletion is still in progress
	ErrNamespaceDeleting = errors.New("namespace is being deleted")
	// ErrCancelTimeout is returned when a namespace task fails to stop
	// within the bounded wait. It indicates a leaked background task and is
	// never swallowed.
	ErrCancelTimeout = errors.New("timed out waiting for namespace task to stop")
)
