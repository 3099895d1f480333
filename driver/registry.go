package driver

import (
	"fmt"
	"slices"
	"sync"
)

// Opener creates a driver instance. It is called on the device's context
// goroutine.
type Opener func() (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{}
)

// Register makes a driver available under name. Registering a name twice
// replaces the earlier opener.
func Register(name string, open Opener) {
	if open == nil {
		panic("driver: Register opener is nil")
	}
	registryMu.Lock()
	registry[name] = open
	registryMu.Unlock()
}

// Lookup returns the opener registered under name.
func Lookup(name string) (Opener, error) {
	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return open, nil
}

// Names returns the registered driver names, sorted.
func Names() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	registryMu.RUnlock()
	slices.Sort(names)
	return names
}
