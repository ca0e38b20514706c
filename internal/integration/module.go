package integration

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/moolen/jiotty/internal/config"
	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
)

// WatcherName is the component name of the config watcher.
const WatcherName = "config-watcher"

// Module returns a lifecycle.Module that loads the file at path and provides
// its enabled components. The file is read again on every install, so a
// restart picks up edits.
func Module(path string, registry *FactoryRegistry) lifecycle.Module {
	return func(c *lifecycle.Container) error {
		cfg, err := config.LoadApplicationFile(path)
		if err != nil {
			return err
		}
		if cfg.Supervisor.WatchConfig {
			if err := WatchModule(path, cfg)(c); err != nil {
				return err
			}
		}
		return Install(c, cfg, registry)
	}
}

// Install provides every enabled component of cfg. Components whose factory
// version is below supervisor.min_component_version are rejected.
func Install(c *lifecycle.Container, cfg *config.ApplicationFile, registry *FactoryRegistry) error {
	logger := logging.GetLogger("integration")

	var minVersion *version.Version
	if cfg.Supervisor.MinComponentVersion != "" {
		v, err := version.NewVersion(cfg.Supervisor.MinComponentVersion)
		if err != nil {
			return fmt.Errorf("invalid min_component_version %q: %w", cfg.Supervisor.MinComponentVersion, err)
		}
		minVersion = v
	}

	for _, comp := range cfg.EnabledComponents() {
		factory, ok := registry.Get(comp.Type)
		if !ok {
			return fmt.Errorf("component %s: unknown type %q (registered: %s)",
				comp.Name, comp.Type, strings.Join(registry.List(), ", "))
		}
		if err := checkVersion(comp, factory, minVersion); err != nil {
			return err
		}

		name, settings, newFn := comp.Name, comp.Config, factory.New
		err := c.Provide(name, func(ctl lifecycle.Control) (lifecycle.Component, error) {
			return newFn(name, settings, ctl)
		}, comp.DependsOn...)
		if err != nil {
			return err
		}
		logger.Debug("Provided %s (type: %s, version: %s)", comp.Name, comp.Type, factory.Version)
	}
	return nil
}

func checkVersion(comp config.ComponentConfig, factory Factory, minVersion *version.Version) error {
	if minVersion == nil {
		return nil
	}
	v, err := version.NewVersion(factory.Version)
	if err != nil {
		return fmt.Errorf("component %s has invalid version %q: %w", comp.Name, factory.Version, err)
	}
	if v.LessThan(minVersion) {
		return fmt.Errorf("component %s (type %s) version %s is below minimum required version %s",
			comp.Name, comp.Type, v, minVersion)
	}
	return nil
}
