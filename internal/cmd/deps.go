package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/snap-telemetry/snapharness/internal/config"
	"github.com/snap-telemetry/snapharness/internal/deps"
	"github.com/snap-telemetry/snapharness/internal/orchestrator"
	"github.com/snap-telemetry/snapharness/internal/taskspec"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "List the plugins each task definition needs",
	Long: `Read the selected task definitions and print the plugins each one
depends on, followed by the combined list in load order.
Nothing is sent to the daemon.`,
	RunE: runDeps,
}

func init() {
	rootCmd.AddCommand(depsCmd)
}

// taskDeps is one task file and the plugins it needs.
type taskDeps struct {
	File string
	Deps []deps.Dependency
	Err  error
}

// readTasks reads the task files cfg selects. Unreadable files are returned
// with their error; all is the union of the readable ones' dependencies.
func readTasks(cfg *config.Config, fs afero.Fs) (tasks []taskDeps, all *deps.Set, err error) {
	files, err := taskspec.Discover(fs, cfg.Tasks.Dir, cfg.Tasks.Selector)
	if err != nil {
		return nil, nil, err
	}
	reader, err := orchestrator.NewReader(fs, cfg.Tasks.EnvFile)
	if err != nil {
		return nil, nil, err
	}

	all = deps.NewSet()
	for _, file := range files {
		def, err := reader.Read(filepath.Join(cfg.Tasks.Dir, filepath.FromSlash(file)), "")
		if err != nil {
			tasks = append(tasks, taskDeps{File: file, Err: err})
			continue
		}
		deps.ExtractInto(all, def)
		tasks = append(tasks, taskDeps{File: file, Deps: deps.Extract(def)})
	}
	return tasks, all, nil
}

func runDeps(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tasks, all, err := readTasks(cfg, afero.NewOsFs())
	if err != nil {
		return err
	}
	return printDeps(cmd.OutOrStdout(), tasks, all)
}

func printDeps(w io.Writer, tasks []taskDeps, all *deps.Set) error {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No task definitions found.")
		return nil
	}

	failed := 0
	for _, t := range tasks {
		if t.Err != nil {
			failed++
			fmt.Fprintf(w, "%s: %v\n", t.File, t.Err)
			continue
		}
		names := make([]string, len(t.Deps))
		for i, d := range t.Deps {
			names[i] = d.String()
		}
		fmt.Fprintf(w, "%s: %s\n", t.File, strings.Join(names, " "))
	}

	fmt.Fprintln(w, "\nLoad order:")
	for _, d := range all.List() {
		fmt.Fprintf(w, "  %s\n", d)
	}

	if failed > 0 {
		return fmt.Errorf("%d task definition(s) could not be read", failed)
	}
	return nil
}
