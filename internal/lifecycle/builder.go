package lifecycle

import "fmt"

// Builder composes modules into an Application.
type Builder struct {
	modules []Module
	opts    []Option
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddModule appends a module. Modules are installed in the order added.
func (b *Builder) AddModule(m Module) *Builder {
	b.modules = append(b.modules, m)
	return b
}

// WithOptions appends Application options.
func (b *Builder) WithOptions(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build installs the modules once to validate them and returns an
// Application that installs them again into a new Container every cycle.
func (b *Builder) Build() (*Application, error) {
	c := NewContainer()
	if err := c.Install(b.modules...); err != nil {
		return nil, err
	}
	if _, err := c.Order(); err != nil {
		return nil, fmt.Errorf("resolving start order: %w", err)
	}
	return New(ModuleSource(b.modules...), b.opts...), nil
}
