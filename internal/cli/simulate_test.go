package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanScenario = `
name: clean
description: "Clean cycles reach canary readiness in dryrun"
config: {window: 4, min_samples: 2}
item: {index: NIFTY, rule: weekly, expiry: "2026-01-08", strikes: [22000, 22100]}
baseline: {expiry_date: "2026-01-08", strike_count: 2, instrument_count: 4, enriched_keys: 4}
cycles:
  - repeat: 3
    phases: [{name: resolve}, {name: enrich}]
assertions:
  - type: final_decision
    reason: dryrun_canary_ready
`

const failingScenario = `
name: failing
description: "Assertion that cannot hold"
item: {index: NIFTY, rule: weekly, expiry: "2026-01-08", strikes: [22000]}
cycles:
  - phases: [{name: resolve}]
assertions:
  - type: final_decision
    reason: parity_target_met
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSimulate_MissingArgs(t *testing.T) {
	_, _, err := execute(t, "simulate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestSimulate_NonExistentPath(t *testing.T) {
	_, _, err := execute(t, "simulate", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulate_EmptyDir(t *testing.T) {
	out, _, err := execute(t, "simulate", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestSimulate_PackageScenarios(t *testing.T) {
	out, _, err := execute(t, "simulate", "../scenario/testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ promote_after_warmup (5 cycles, 2 promoted, final below_parity_target)")
	assert.Contains(t, out, "✓ abort_then_secondary")
	assert.Contains(t, out, "Simulate Summary: 2 passed, 0 failed, 2 total")
}

func TestSimulate_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "clean.yaml", cleanScenario)
	writeScenario(t, dir, "failing.yaml", failingScenario)

	out, _, err := execute(t, "simulate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ clean")
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestSimulate_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "clean.yaml", cleanScenario)
	writeScenario(t, dir, "failing.yaml", failingScenario)

	out, _, err := execute(t, "simulate", dir, "--filter", "cl*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestSimulate_LoadErrorCountsAsFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, _, err := execute(t, "simulate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")
}

func TestSimulate_JSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "clean.yaml", cleanScenario)

	out, _, err := execute(t, "--format", "json", "simulate", dir)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   SimulateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, 3, resp.Data.Scenarios[0].Cycles)
	assert.Equal(t, "dryrun_canary_ready", resp.Data.Scenarios[0].Final)
}

func TestSimulate_GoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "clean.yaml", cleanScenario)

	out, _, err := execute(t, "simulate", dir, "--update")
	require.NoError(t, err, out)
	golden := filepath.Join(dir, "golden", "clean.golden")
	require.FileExists(t, golden)

	_, _, err = execute(t, "simulate", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"clean","trace":[]}`), 0o644))
	out, _, err = execute(t, "simulate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestSimulate_ConfigBase(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "clean.yaml", cleanScenario)
	cfg := filepath.Join(t.TempDir(), "shadow.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("mode = \"off\"\n"), 0o644))

	out, _, err := execute(t, "--config", cfg, "simulate", dir)
	require.Error(t, err, "mode off from the options file must change the final reason")
	assert.Contains(t, out, `reason "disabled", want "dryrun_canary_ready"`)
}

func TestSimulate_BadConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "shadow.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("window: 0\n"), 0o644))

	_, _, err := execute(t, "--config", cfg, "simulate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulate_Metrics(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "clean.yaml", cleanScenario)

	out, _, err := execute(t, "simulate", dir, "--metrics", "prometheus")
	require.NoError(t, err)
	assert.Contains(t, out, "chainshadow_cycle_total")
	assert.Contains(t, out, "chainshadow_gating_decisions_total")

	out, _, err = execute(t, "simulate", dir, "--metrics", "otel")
	require.NoError(t, err)
	assert.Contains(t, out, "chainshadow.gating.decisions{")
	assert.Contains(t, out, "chainshadow.phase.attempts{phase=resolve} 3")
}

func TestSimulate_MetricsFlagErrors(t *testing.T) {
	_, _, err := execute(t, "simulate", t.TempDir(), "--metrics", "statsd")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "simulate", t.TempDir(), "--metrics-addr", ":0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--metrics-addr requires --metrics prometheus")
}

func TestFindScenarioFiles_SkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", cleanScenario)
	writeScenario(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	writeScenario(t, filepath.Join(dir, "golden"), "a.yaml", "ignored")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files)

	single, err := findScenarioFiles(filepath.Join(dir, "a.yaml"), "")
	require.NoError(t, err)
	assert.Len(t, single, 1)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "drift.golden"), goldenFilePath(filepath.Join("scenarios", "drift.yaml")))
}
