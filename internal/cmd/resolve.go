package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/snap-telemetry/snapharness/internal/config"
	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/orchestrator"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show where each required plugin would be loaded from",
	Long: `Resolve every plugin the selected task definitions need, showing
whether a locally built artifact is used or which URL would be fetched.
Nothing is downloaded or loaded.`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := afero.NewOsFs()
	_, all, err := readTasks(cfg, fs)
	if err != nil {
		return err
	}
	return printSources(cmd.OutOrStdout(), cfg, fs, all.List())
}

func printSources(w io.Writer, cfg *config.Config, fs afero.Fs, list []deps.Dependency) error {
	resolver, err := orchestrator.NewResolver(cfg, fs)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tSOURCE\tLOCATION")
	failed := 0
	for _, dep := range list {
		src, err := resolver.Resolve(dep, cfg.Plugins.Version)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(tw, "%s\t-\t%v\n", dep, err)
		case src.Local:
			fmt.Fprintf(tw, "%s\tlocal\t%s\n", dep, src.Path)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s -> %s\n", dep, src.Rule, src.URL, src.Path)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d plugin(s) could not be resolved", failed)
	}
	return nil
}
