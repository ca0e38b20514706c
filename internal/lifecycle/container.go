package lifecycle

import (
	"fmt"
	"strings"
)

// Source supplies the ordered components for one cycle. It is queried again
// at the start of every cycle.
type Source interface {
	Components(ctl Control) ([]Component, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctl Control) ([]Component, error)

// Components calls f.
func (f SourceFunc) Components(ctl Control) ([]Component, error) {
	return f(ctl)
}

// Provider constructs a component. It receives the application's Control so
// the component can request shutdown or restart.
type Provider func(ctl Control) (Component, error)

// Module registers providers into a Container.
type Module func(c *Container) error

type provision struct {
	name      string
	provider  Provider
	dependsOn []string
}

// Container holds named providers and their dependencies and resolves them
// into a start order. It implements Source: every call to Components invokes
// the providers again, yielding fresh components.
type Container struct {
	provisions []*provision
	byName     map[string]*provision
}

// NewContainer returns an empty Container.
func NewContainer() *Container {
	return &Container{byName: make(map[string]*provision)}
}

// Provide registers a provider under name. Dependencies may be provided later;
// unknown dependencies and cycles are reported by Order and Components.
func (c *Container) Provide(name string, provider Provider, dependsOn ...string) error {
	if provider == nil {
		return fmt.Errorf("cannot provide nil provider for %q", name)
	}
	if name == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	if _, exists := c.byName[name]; exists {
		return fmt.Errorf("component %s is already provided", name)
	}
	for _, dep := range dependsOn {
		if dep == name {
			return fmt.Errorf("component %s cannot depend on itself", name)
		}
	}

	p := &provision{name: name, provider: provider, dependsOn: append([]string(nil), dependsOn...)}
	c.provisions = append(c.provisions, p)
	c.byName[name] = p
	return nil
}

// Install runs each module against the container, stopping at the first error.
func (c *Container) Install(modules ...Module) error {
	for i, m := range modules {
		if m == nil {
			return fmt.Errorf("module %d is nil", i)
		}
		if err := m(c); err != nil {
			return fmt.Errorf("installing module %d: %w", i, err)
		}
	}
	return nil
}

// Order returns provider names with dependencies before dependents. Among
// independent providers registration order is kept.
func (c *Container) Order() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(c.provisions))
	sorted := make([]string, 0, len(c.provisions))

	var visit func(p *provision, path []string) error
	visit = func(p *provision, path []string) error {
		switch marks[p.name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency: %s", strings.Join(append(path, p.name), " -> "))
		}
		marks[p.name] = visiting
		path = append(path, p.name)

		for _, depName := range p.dependsOn {
			dep, ok := c.byName[depName]
			if !ok {
				return fmt.Errorf("component %s depends on unknown component %s", p.name, depName)
			}
			if err := visit(dep, path); err != nil {
				return err
			}
		}

		marks[p.name] = done
		sorted = append(sorted, p.name)
		return nil
	}

	for _, p := range c.provisions {
		if err := visit(p, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// Components constructs a fresh component for every provider, in Order.
func (c *Container) Components(ctl Control) ([]Component, error) {
	order, err := c.Order()
	if err != nil {
		return nil, err
	}

	components := make([]Component, 0, len(order))
	for _, name := range order {
		component, err := c.byName[name].provider(ctl)
		if err != nil {
			return nil, fmt.Errorf("providing %s: %w", name, err)
		}
		if component == nil {
			return nil, fmt.Errorf("provider for %s returned nil component", name)
		}
		components = append(components, component)
	}
	return components, nil
}

// ModuleSource composes modules into a Source. Each call to Components
// installs every module into a new Container, so modules that read external
// configuration see its current state.
func ModuleSource(modules ...Module) Source {
	return SourceFunc(func(ctl Control) ([]Component, error) {
		c := NewContainer()
		if err := c.Install(modules...); err != nil {
			return nil, err
		}
		return c.Components(ctl)
	})
}
