package config

import (
	"time"
)

// SchemaVersion is the only supported value of schema_version.
const SchemaVersion = "v1"

// ApplicationFile is the top-level structure of the jiotty configuration
// file. It configures the supervisor and lists the components to run.
//
// Example YAML structure:
//
//	schema_version: v1
//	supervisor:
//	  exit_timeout: 1m
//	  stop_timeout: 30s
//	  watch_config: true
//	components:
//	  - name: broker
//	    type: mqtt
//	    enabled: true
//	    config:
//	      broker: tcp://localhost:1883
//	  - name: api
//	    type: http
//	    enabled: true
//	    depends_on: [broker]
//	    config:
//	      port: 8080
type ApplicationFile struct {
	// SchemaVersion is the explicit config schema version ("v1").
	SchemaVersion string `yaml:"schema_version" json:"schema_version" validate:"required" jsonschema:"enum=v1"`

	// Supervisor tunes the lifecycle supervisor.
	Supervisor SupervisorConfig `yaml:"supervisor" json:"supervisor,omitempty"`

	// Components lists component instances in declaration order.
	Components []ComponentConfig `yaml:"components" json:"components" validate:"dive"`
}

// SupervisorConfig holds supervisor settings. Durations use Go syntax
// ("30s", "1m").
type SupervisorConfig struct {
	ExitTimeout string `yaml:"exit_timeout,omitempty" json:"exit_timeout,omitempty" validate:"omitempty,duration" jsonschema:"description=How long the exit hook waits for teardown,example=1m"`
	StopTimeout string `yaml:"stop_timeout,omitempty" json:"stop_timeout,omitempty" validate:"omitempty,duration" jsonschema:"description=Deadline for each component stop,example=30s"`

	// WatchConfig restarts the application when this file changes.
	WatchConfig bool `yaml:"watch_config" json:"watch_config,omitempty"`

	// MinComponentVersion rejects component types older than this version.
	MinComponentVersion string `yaml:"min_component_version,omitempty" json:"min_component_version,omitempty" validate:"omitempty,version"`
}

// ComponentConfig is a single component instance.
type ComponentConfig struct {
	// Name is unique across the file and used for dependencies, logs and
	// metrics.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Type selects the registered factory (e.g. "http", "mqtt").
	Type string `yaml:"type" json:"type" validate:"required"`

	// Enabled components are started; disabled ones are skipped.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DependsOn names components that must start before this one.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`

	// Config is passed to the factory as-is.
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// ExitTimeoutOr returns the configured exit timeout, or def when unset.
func (s SupervisorConfig) ExitTimeoutOr(def time.Duration) time.Duration {
	return durationOr(s.ExitTimeout, def)
}

// StopTimeoutOr returns the configured stop timeout, or def when unset.
func (s SupervisorConfig) StopTimeoutOr(def time.Duration) time.Duration {
	return durationOr(s.StopTimeout, def)
}

func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// EnabledComponents returns the enabled components in declaration order.
func (f *ApplicationFile) EnabledComponents() []ComponentConfig {
	enabled := make([]ComponentConfig, 0, len(f.Components))
	for _, c := range f.Components {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	return enabled
}

// DefaultApplicationFile returns the sample configuration written by
// "jiotty init".
func DefaultApplicationFile() *ApplicationFile {
	return &ApplicationFile{
		SchemaVersion: SchemaVersion,
		Supervisor: SupervisorConfig{
			ExitTimeout: "1m",
			StopTimeout: "30s",
			WatchConfig: true,
		},
		Components: []ComponentConfig{
			{
				Name:    "heartbeat",
				Type:    "heartbeat",
				Enabled: true,
				Config: map[string]interface{}{
					"interval": "1m",
				},
			},
			{
				Name:      "api",
				Type:      "http",
				Enabled:   true,
				DependsOn: []string{"heartbeat"},
				Config: map[string]interface{}{
					"port": 8080,
				},
			},
			{
				Name:    "availability",
				Type:    "mqtt",
				Enabled: false,
				Config: map[string]interface{}{
					"broker":    "tcp://localhost:1883",
					"client_id": "jiotty",
					"prefix":    "jiotty",
				},
			},
			{
				Name:    "tracing",
				Type:    "tracing",
				Enabled: false,
				Config: map[string]interface{}{
					"endpoint": "localhost:4317",
					"insecure": true,
				},
			},
		},
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
