package tenant

import "sync/atomic"

var std atomic.Pointer[Manager]

// SetDefault installs m as the process-wide manager returned by Default.
// cmd/server calls it once at boot; tests build their own Manager.
func SetDefault(m *Manager) { std.Store(m) }

// Default returns the manager installed by SetDefault, or nil.
func Default() *Manager { return std.Load() }
