package loader

import "errors"

// ErrPoolStopped is returned to any task still queued when Stop is called.
var ErrPoolStopped = errors.New("loader: pool stopped before task ran")
