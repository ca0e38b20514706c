package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/moolen/jiotty/internal/config"
	"github.com/moolen/jiotty/internal/integration"
	"github.com/moolen/jiotty/internal/lifecycle"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the application file and print the start order",
	Long: `Validate loads the application file, resolves every enabled component
against the registered types and prints the order in which they would be
started. Nothing is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateApplication(cmd.OutOrStdout(), configPath, integration.DefaultRegistry())
	},
}

func validateApplication(w io.Writer, path string, registry *integration.FactoryRegistry) error {
	cfg, err := config.LoadApplicationFile(path)
	if err != nil {
		return err
	}

	c := lifecycle.NewContainer()
	if err := integration.Module(path, registry)(c); err != nil {
		return err
	}
	order, err := c.Order()
	if err != nil {
		return fmt.Errorf("resolving start order: %w", err)
	}

	byName := make(map[string]config.ComponentConfig)
	for _, comp := range cfg.Components {
		byName[comp.Name] = comp
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "Type", "Version", "Depends On"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for i, name := range order {
		typ, ver, deps := "-", "-", "-"
		if comp, ok := byName[name]; ok {
			typ = comp.Type
			if f, ok := registry.Get(comp.Type); ok {
				ver = f.Version
			}
			if len(comp.DependsOn) > 0 {
				deps = strings.Join(comp.DependsOn, ", ")
			}
		} else if name == integration.WatcherName {
			typ = "builtin"
		}
		table.Append([]string{strconv.Itoa(i + 1), name, typ, ver, deps})
	}
	table.Render()

	_, _ = fmt.Fprintf(w, "\n%s is valid (%d components)\n", path, len(order))
	return nil
}
