// Package testutil provides shared helpers for repository tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const (
	envSushiOracleBin           = "SUSHI_ORACLE_BIN"
	envSushiOracleVersionPrefix = "SUSHI_ORACLE_VERSION_PREFIX"
	envSushiOracleRequired      = "SUSHI_ORACLE_REQUIRED"
)

// SushiOracle runs the reference SUSHI compiler as an export compatibility oracle.
// It is never invoked by the core packages themselves; it exists so parity
// tests can be run locally or in CI when the `sushi` binary happens to be
// installed, without making it a hard dependency of the test suite.
type SushiOracle struct {
	Bin           string
	VersionPrefix string
	Required      bool
}

// SushiOracleFromEnv builds oracle configuration from environment variables.
func SushiOracleFromEnv() SushiOracle {
	bin := strings.TrimSpace(os.Getenv(envSushiOracleBin))
	if bin == "" {
		bin = "sushi"
	}
	required := strings.TrimSpace(os.Getenv(envSushiOracleRequired))
	return SushiOracle{
		Bin:           bin,
		VersionPrefix: strings.TrimSpace(os.Getenv(envSushiOracleVersionPrefix)),
		Required:      required == "1" || strings.EqualFold(required, "true"),
	}
}

// RequireSushiOracle returns a configured oracle or skips the test when unavailable.
func RequireSushiOracle(t testing.TB) SushiOracle {
	t.Helper()

	oracle := SushiOracleFromEnv()
	if err := oracle.CheckAvailability(context.Background()); err != nil {
		if oracle.Required {
			t.Fatalf("sushi oracle unavailable: %v", err)
		}
		t.Skipf("skipping sushi oracle compatibility test: %v", err)
	}
	return oracle
}

// CheckAvailability verifies the binary exists and matches the configured version prefix (if any).
func (o SushiOracle) CheckAvailability(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := exec.LookPath(o.Bin); err != nil {
		return fmt.Errorf("look up %q: %w", o.Bin, err)
	}

	if o.VersionPrefix == "" {
		return nil
	}

	version, err := o.Version(ctx)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(version, o.VersionPrefix) {
		return fmt.Errorf("oracle version %q does not match required prefix %q", version, o.VersionPrefix)
	}
	return nil
}

// Version returns `sushi --version` output.
func (o SushiOracle) Version(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	//nolint:gosec // Test helper intentionally executes a configured local sushi binary.
	cmd := exec.CommandContext(ctx, o.Bin, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run %s --version: %w (%s)", o.Bin, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// BuildIG runs the SUSHI compiler against a project directory containing a
// sushi-config.yaml and input/fsh sources, returning an error if SUSHI itself
// reports a build failure. Generated output is discarded; this only checks
// that SUSHI accepts the same FSH this module accepts.
func (o SushiOracle) BuildIG(ctx context.Context, projectDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(projectDir) == "" {
		return errors.New("empty project directory")
	}

	outDir, err := os.MkdirTemp("", "sushi-oracle-out-*")
	if err != nil {
		return fmt.Errorf("mkdir temp: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	//nolint:gosec // Test helper intentionally executes a configured local sushi binary on a temporary fixture path.
	cmd := exec.CommandContext(ctx, o.Bin, filepath.Clean(projectDir), "-o", outDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sushi oracle build failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
