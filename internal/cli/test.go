package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
	Watch  bool   // rerun on file changes
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run change-set scenarios",
		Long: `Run change-set scenarios from YAML files.

Each scenario inflates a snapshot into a declared type, applies edits,
and checks the resulting dirty set and $set/$unset change set.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  docmap test ./scenarios
  docmap test ./scenarios --filter "rename_*"
  docmap test ./scenarios --format json
  docmap test ./scenarios --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "rerun scenarios when scenario or declaration files change")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}

	if !opts.Watch {
		return runSuiteOnce(opts, scenariosDir, formatter)
	}
	return watchSuite(opts, scenariosDir, cmd, formatter)
}

func runSuiteOnce(opts *TestOptions, scenariosDir string, formatter *OutputFormatter) error {
	files, err := harness.Discover(scenariosDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "finding scenarios", err)
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "filtering scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(file)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := formatter.Result(testText(result), result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// watchSuite runs the suite, then reruns it on every settled change until
// the command context is cancelled. Failing runs do not stop the loop.
func watchSuite(opts *TestOptions, scenariosDir string, cmd *cobra.Command, formatter *OutputFormatter) error {
	_ = runSuiteOnce(opts, scenariosDir, formatter)

	w, err := harness.NewWatcher(watchRoots(scenariosDir)...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "watching scenarios", err)
	}
	defer w.Close()

	fmt.Fprintf(formatter.GetErrWriter(), "Watching %s for changes...\n", scenariosDir)
	err = w.Run(cmd.Context(), func(path string) {
		opts.logger().Debug("change detected", "path", path)
		_ = runSuiteOnce(opts, scenariosDir, formatter)
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "watching scenarios", err)
	}
	return nil
}

// watchRoots returns the scenario directory plus every schema directory
// the scenarios under it reference.
func watchRoots(scenariosDir string) []string {
	roots := []string{scenariosDir}
	files, err := harness.Discover(scenariosDir)
	if err != nil {
		return roots
	}
	seen := map[string]bool{filepath.Clean(scenariosDir): true}
	for _, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil || s.SchemaDir == "" {
			continue
		}
		dir := filepath.Clean(s.SchemaDir)
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	return roots
}

// filterScenarios keeps the files whose base name, without extension,
// matches the glob pattern.
func filterScenarios(files []string, filter string) ([]string, error) {
	if filter == "" {
		return files, nil
	}
	out := []string{}
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, path)
		}
	}
	return out, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(path string) ScenarioResult {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(path),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}
	return ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
}

func testText(r TestResult) string {
	if r.Total == 0 {
		return "No scenarios found."
	}
	var b strings.Builder
	for _, s := range r.Scenarios {
		if s.Pass {
			fmt.Fprintf(&b, "PASS %s\n", s.Name)
			continue
		}
		fmt.Fprintf(&b, "FAIL %s\n", s.Name)
		for _, e := range s.Errors {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total", r.Passed, r.Failed, r.Total)
	return b.String()
}
