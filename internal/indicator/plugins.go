package indicator

import "sync"

// pluginRegistry holds custom indicator modules registered at process
// startup, before any Engine is constructed. Matches §4.2's "the
// engine must support pluggable indicator modules... The engine
// auto-discovers them at startup": in Go, auto-discovery is a
// package-level registration call from each custom indicator's
// init(), rather than a filesystem scan, since Go has no runtime
// module-import-by-path mechanism equivalent to Python's.
var (
	pluginMu    sync.Mutex
	pluginByName = map[string]Custom{}
)

// RegisterPlugin adds a custom indicator module to the global
// registry. Call this from an init() func in the package defining the
// indicator (see custom_keltner.go); every NewEngine adopts
// everything registered so far.
func RegisterPlugin(c Custom) {
	pluginMu.Lock()
	defer pluginMu.Unlock()
	pluginByName[c.Name] = c
}

// Plugins returns a snapshot of all currently-registered custom
// indicator modules.
func Plugins() []Custom {
	pluginMu.Lock()
	defer pluginMu.Unlock()
	out := make([]Custom, 0, len(pluginByName))
	for _, c := range pluginByName {
		out = append(out, c)
	}
	return out
}

