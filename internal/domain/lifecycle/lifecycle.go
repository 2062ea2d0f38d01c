// Package lifecycle holds the shared limits of fx start and stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds every OnStart and OnStop hook.
const DefaultTimeout = 10 * time.Second
