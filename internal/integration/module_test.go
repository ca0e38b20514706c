package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/jiotty/internal/lifecycle"
)

type recordingFactory struct {
	mu      sync.Mutex
	created []string
	configs map[string]map[string]interface{}
}

func (f *recordingFactory) factory(v string) Factory {
	return Factory{
		Version: v,
		New: func(name string, cfg map[string]interface{}, _ lifecycle.Control) (lifecycle.Component, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.created = append(f.created, name)
			if f.configs == nil {
				f.configs = map[string]map[string]interface{}{}
			}
			f.configs[name] = cfg
			return lifecycle.NewComponent(name, nil, nil), nil
		},
	}
}

func createTestConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jiotty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const moduleConfig = `schema_version: v1
components:
  - name: api
    type: mock
    enabled: true
    depends_on: [broker]
    config:
      port: 8080
  - name: broker
    type: mock
    enabled: true
  - name: legacy
    type: unknown-type
    enabled: false
`

func TestModuleProvidesEnabledComponentsInDependencyOrder(t *testing.T) {
	rec := &recordingFactory{}
	registry := NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", rec.factory("1.0.0")))

	c := lifecycle.NewContainer()
	require.NoError(t, c.Install(Module(createTestConfigFile(t, moduleConfig), registry)))

	order, err := c.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker", "api"}, order)

	components, err := c.Components(nil)
	require.NoError(t, err)
	require.Len(t, components, 2)
	assert.Equal(t, "broker", components[0].Name())
	assert.EqualValues(t, 8080, rec.configs["api"]["port"])
}

func TestModuleRejectsUnknownType(t *testing.T) {
	path := createTestConfigFile(t, `schema_version: v1
components:
  - name: door
    type: gpio
    enabled: true
`)
	registry := NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", noopFactory("1.0.0")))

	err := lifecycle.NewContainer().Install(Module(path, registry))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "gpio" (registered: mock)`)
}

func TestModuleVersionValidation(t *testing.T) {
	path := createTestConfigFile(t, `schema_version: v1
supervisor:
  min_component_version: "1.0.0"
components:
  - name: old
    type: mock
    enabled: true
`)

	registry := NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", noopFactory("0.9.0")))
	err := lifecycle.NewContainer().Install(Module(path, registry))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below minimum required version")

	registry = NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", noopFactory("1.0.0")))
	assert.NoError(t, lifecycle.NewContainer().Install(Module(path, registry)))
}

func TestModuleAddsWatcherWhenEnabled(t *testing.T) {
	path := createTestConfigFile(t, `schema_version: v1
supervisor:
  watch_config: true
components:
  - name: broker
    type: mock
    enabled: true
`)
	registry := NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", noopFactory("1.0.0")))

	c := lifecycle.NewContainer()
	require.NoError(t, c.Install(Module(path, registry)))

	order, err := c.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{WatcherName, "broker"}, order)
}

func TestModuleRereadsConfigEachCycle(t *testing.T) {
	path := createTestConfigFile(t, moduleConfig)
	rec := &recordingFactory{}
	registry := NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", rec.factory("1.0.0")))

	source := lifecycle.ModuleSource(Module(path, registry))
	_, err := source.Components(nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`schema_version: v1
components:
  - name: solo
    type: mock
    enabled: true
`), 0644))

	components, err := source.Components(nil)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "solo", components[0].Name())
	assert.Equal(t, []string{"broker", "api", "solo"}, rec.created)
}

func TestModuleRunsUnderApplication(t *testing.T) {
	path := createTestConfigFile(t, moduleConfig)
	rec := &recordingFactory{}
	registry := NewFactoryRegistry()
	require.NoError(t, registry.Register("mock", rec.factory("1.0.0")))

	app, err := lifecycle.NewBuilder().
		AddModule(Module(path, registry)).
		WithOptions(lifecycle.WithSignals()).
		Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))

	// Build only resolves the order; providers run once, in the cycle.
	assert.Equal(t, []string{"broker", "api"}, rec.created)
}
