package snquery

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// -----------------------------------------------------------------------------
// Band registry
// -----------------------------------------------------------------------------

// DefaultRegistry is the process-wide band registry used when a release is
// constructed without WithFilterRegistry. It mirrors the fitting library's
// global registry model: registrations persist for the life of the process
// and are shared by every release.
var DefaultRegistry FilterRegistry = NewMemRegistry()

// memRegistry implements FilterRegistry in memory.
type memRegistry struct {
	mu    sync.Mutex
	bands map[string]Bandpass
}

// NewMemRegistry creates an empty in-memory band registry.
func NewMemRegistry() FilterRegistry {
	return &memRegistry{bands: make(map[string]Bandpass)}
}

func (m *memRegistry) Registered(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bands[name]
	return ok
}

func (m *memRegistry) Register(band Bandpass, force bool) error {
	if band.Name == "" {
		return fmt.Errorf("snquery: bandpass has no name")
	}
	if len(band.Wavelength) != len(band.Transmission) {
		return fmt.Errorf("snquery: bandpass %q: %d wavelengths with %d transmission samples",
			band.Name, len(band.Wavelength), len(band.Transmission))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bands[band.Name]; exists && !force {
		return fmt.Errorf("snquery: bandpass %q already registered", band.Name)
	}
	m.bands[band.Name] = band
	return nil
}

// -----------------------------------------------------------------------------
// Data directory resolution
// -----------------------------------------------------------------------------

// dataDirEnv overrides the default on-disk location of downloaded data.
const dataDirEnv = "SNQUERY_DIR"

// DefaultDataDir resolves the root directory for downloaded survey data:
// $SNQUERY_DIR when set, otherwise a "snquery" directory under the user
// cache directory, falling back to the working directory when no user cache
// directory is defined.
func DefaultDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "snquery-data"
	}
	return filepath.Join(cache, "snquery")
}
