package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	// Register the built-in component types.
	_ "github.com/moolen/jiotty/internal/apiserver"
	_ "github.com/moolen/jiotty/internal/heartbeat"
	_ "github.com/moolen/jiotty/internal/mqtt"

	"github.com/moolen/jiotty/internal/config"
	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
	"github.com/moolen/jiotty/internal/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the components of the application file",
	Long: `Run starts every enabled component of the application file in
dependency order and keeps them running until SIGINT or SIGTERM, or until
shutdown is requested through the control API. A restart re-reads the file.`,
	RunE: runApplication,
}

func runApplication(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger("main")

	app, err := buildApplication(configPath, integration.DefaultRegistry(), prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	logger.Info("Starting jiotty v%s with %s", Version, configPath)
	if err := app.Run(cmd.Context()); err != nil {
		return fmt.Errorf("running application: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

// buildApplication reads the supervisor settings from path and builds an
// Application whose cycles install the file's components.
func buildApplication(path string, registry *integration.FactoryRegistry, reg prometheus.Registerer, extra ...lifecycle.Option) (*lifecycle.Application, error) {
	cfg, err := config.LoadApplicationFile(path)
	if err != nil {
		return nil, err
	}
	tracing.Version = Version

	opts := []lifecycle.Option{
		lifecycle.WithExitTimeout(cfg.Supervisor.ExitTimeoutOr(lifecycle.DefaultExitTimeout)),
		lifecycle.WithStopTimeout(cfg.Supervisor.StopTimeoutOr(lifecycle.DefaultStopTimeout)),
		lifecycle.WithRegisterer(reg),
	}
	opts = append(opts, extra...)

	return lifecycle.NewBuilder().
		AddModule(integration.Module(path, registry)).
		WithOptions(opts...).
		Build()
}
