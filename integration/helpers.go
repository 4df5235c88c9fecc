//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FixturesDir returns the path to the fixtures directory
func FixturesDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(filename), "fixtures")
}

// Fixture returns the path to a named fixture file
func Fixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(FixturesDir(t), name)
}

// testEnv is an isolated home, config, database and output root
type testEnv struct {
	home       string
	configPath string
	dbPath     string
	outputDir  string
}

// newTestEnv writes a config that points every path into a temp dir and
// uses the fixture as the static model response
func newTestEnv(t *testing.T, staticFixture string) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		home:       filepath.Join(root, "home"),
		configPath: filepath.Join(root, "config.toml"),
		dbPath:     filepath.Join(root, "runs.db"),
		outputDir:  filepath.Join(root, "output"),
	}
	if err := os.MkdirAll(env.home, 0755); err != nil {
		t.Fatal(err)
	}

	config := `[general]
output_dir = "` + env.outputDir + `"
database_path = "` + env.dbPath + `"

[llm]
provider = "static"
static_response_path = "` + Fixture(t, staticFixture) + `"

[retention]
cron = ""
max_age_days = 30
`
	if err := os.WriteFile(env.configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return env
}

// runCLI executes the binary with the env's config and returns combined output
func (e *testEnv) runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--config", e.configPath}, args...)
	cmd := exec.Command(binaryPath(t), full...)
	cmd.Env = filteredEnv(e.home)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// filteredEnv drops provider settings from the parent environment
func filteredEnv(home string) []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LLM_") || strings.HasPrefix(kv, "HOME=") || strings.HasPrefix(kv, "EXECUTOR_") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "HOME="+home)
}
