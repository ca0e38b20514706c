package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moolen/jiotty/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default application file",
	Long: `Init writes an application file with a heartbeat and the HTTP control
API enabled, plus disabled MQTT availability and tracing entries to start
from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeDefaultApplicationFile(configPath, initForce); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Application file written to %s\n", configPath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func writeDefaultApplicationFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return config.WriteApplicationFile(path, config.DefaultApplicationFile())
}
