// Package executor re-runs patched Playwright tests to confirm a repair
// actually fixes the failure before it is reported as healed.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kamilpajak/fring/internal/parser"
	"github.com/kamilpajak/fring/pkg/models"
)

// Runner validates patched tests by executing them with the Playwright
// CLI in the project directory. It implements the healing validator.
type Runner struct {
	// Dir is the Playwright project root (where playwright.config lives).
	Dir string

	// command allows tests to stub the CLI invocation.
	command func(ctx context.Context, dir string, args ...string) *exec.Cmd
}

// New creates a Runner for the given Playwright project directory.
func New(dir string) *Runner {
	return &Runner{Dir: dir, command: defaultCommand}
}

func defaultCommand(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "npx", args...)
	cmd.Dir = dir
	return cmd
}

// Validate writes the patched source over the test file, runs only that
// test, and restores the original content afterwards. It returns true
// when the patched test passes.
func (r *Runner) Validate(ctx context.Context, test *models.TestResult, patched string) (bool, error) {
	if test == nil || test.TestPath == "" {
		return false, fmt.Errorf("test has no file path")
	}

	path := filepath.Join(r.Dir, test.TestPath)
	orig, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read test file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat test file: %w", err)
	}

	if err := os.WriteFile(path, []byte(patched), info.Mode()); err != nil {
		return false, fmt.Errorf("failed to write patched test: %w", err)
	}
	defer func() {
		_ = os.WriteFile(path, orig, info.Mode())
	}()

	report, err := r.runTest(ctx, test)
	if err != nil {
		return false, err
	}

	res := findResult(report, test)
	if res == nil {
		return false, fmt.Errorf("test %q not found in validation run", test.ID())
	}
	return res.Status == models.StatusPassed, nil
}

// runTest executes a single test via the JSON reporter. Playwright exits
// non-zero when tests fail, so the exit code alone is not an error; the
// report is authoritative when it parses.
func (r *Runner) runTest(ctx context.Context, test *models.TestResult) (*models.Report, error) {
	args := []string{"playwright", "test", test.TestPath, "--reporter=json"}
	if title := lastTitle(test.TestName); title != "" {
		args = append(args, "--grep", regexp.QuoteMeta(title))
	}

	command := r.command
	if command == nil {
		command = defaultCommand
	}
	cmd := command(ctx, r.Dir, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p := &parser.PlaywrightParser{}
	report, perr := p.ParseBytes(stdout.Bytes())
	if perr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("playwright run failed: %w\nOutput: %s", runErr, stderr.String())
		}
		return nil, perr
	}
	return report, nil
}

// findResult matches the validation run's result back to the original
// test. Titles are compared on their final segment since the grep filter
// already narrowed the run.
func findResult(report *models.Report, test *models.TestResult) *models.TestResult {
	want := lastTitle(test.TestName)
	for i := range report.Results {
		if lastTitle(report.Results[i].TestName) == want {
			return &report.Results[i]
		}
	}
	return nil
}

func lastTitle(name string) string {
	if i := strings.LastIndex(name, " > "); i >= 0 {
		return name[i+3:]
	}
	return name
}

// Install installs playwright browsers
func Install() error {
	return playwright.Install()
}

// IsAvailable checks if playwright browsers are installed
func IsAvailable() bool {
	pw, err := playwright.Run()
	if err != nil {
		return false
	}
	pw.Stop()
	return true
}
