// Package integration turns the configuration file into lifecycle components.
//
// Component types register a Factory at init time:
//
//	func init() {
//	  integration.MustRegisterFactory("heartbeat", integration.Factory{
//	    Version: "1.0.0",
//	    New:     newHeartbeat,
//	  })
//	}
//
// Module then provides one component per enabled config entry, resolving the
// factory by type.
package integration

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-version"

	"github.com/moolen/jiotty/internal/lifecycle"
)

// NewFunc creates a component instance.
// name: unique instance name from the config file
// cfg: the instance's config map
// ctl: control handle for requesting shutdown or restart
type NewFunc func(name string, cfg map[string]interface{}, ctl lifecycle.Control) (lifecycle.Component, error)

// Factory describes a component type.
type Factory struct {
	// Version of the implementation, checked against
	// supervisor.min_component_version.
	Version string

	// Description is shown by "jiotty validate".
	Description string

	New NewFunc
}

// FactoryRegistry maps component types to factories.
type FactoryRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var defaultRegistry = NewFactoryRegistry()

// NewFactoryRegistry creates an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a factory for componentType.
// Returns error if:
//   - componentType is empty
//   - factory.New is nil
//   - factory.Version is not a valid version
//   - componentType is already registered
func (r *FactoryRegistry) Register(componentType string, factory Factory) error {
	if componentType == "" {
		return fmt.Errorf("component type cannot be empty")
	}
	if factory.New == nil {
		return fmt.Errorf("component type %q has no constructor", componentType)
	}
	if _, err := version.NewVersion(factory.Version); err != nil {
		return fmt.Errorf("component type %q has invalid version %q: %w", componentType, factory.Version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[componentType]; exists {
		return fmt.Errorf("component type %q is already registered", componentType)
	}
	r.factories[componentType] = factory
	return nil
}

// Get returns the factory for componentType.
func (r *FactoryRegistry) Get(componentType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, exists := r.factories[componentType]
	return factory, exists
}

// List returns the registered types, sorted.
func (r *FactoryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry returns the process-wide registry used by RegisterFactory.
func DefaultRegistry() *FactoryRegistry {
	return defaultRegistry
}

// RegisterFactory registers with the default registry.
func RegisterFactory(componentType string, factory Factory) error {
	return defaultRegistry.Register(componentType, factory)
}

// MustRegisterFactory is RegisterFactory for init functions; it panics on
// error.
func MustRegisterFactory(componentType string, factory Factory) {
	if err := RegisterFactory(componentType, factory); err != nil {
		panic(err)
	}
}

// DecodeConfig decodes a component config map into out, which must be a
// pointer to a struct with mapstructure tags. Strings such as "30s" decode
// into time.Duration fields and unknown keys are rejected.
func DecodeConfig(cfg map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
