package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wikiloom/internal/config"
	"wikiloom/internal/pagestate"
	"wikiloom/internal/store"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &cliTestEnv{
		cfg:        cfg,
		store:      s,
		configPath: configPath,
		baseDir:    base,
	}
}

func writeTestConfig(t *testing.T, path, base string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
report_dir = %q

[wiki]
api_url = "http://wiki.test/api.php"

[languages]
source = "en"
targets = ["de", "fr"]

[engine]
providers = ["mock"]
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "reports"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCLITranslateAndQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "translate", "Main Page")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(out, "de") || !strings.Contains(out, "fr") {
		t.Fatalf("translate should queue every target: %q", out)
	}

	out, err = runCLI(t, env.configPath, "translate", "Main Page")
	if err != nil {
		t.Fatalf("translate again: %v", err)
	}
	if !strings.Contains(out, "already queued") {
		t.Fatalf("duplicate enqueue should be reported: %q", out)
	}

	out, err = runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "queued") {
		t.Fatalf("queue status output: %q", out)
	}

	out, err = runCLI(t, env.configPath, "queue", "list", "--status", "queued")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Main Page") {
		t.Fatalf("queue list missing job: %q", out)
	}

	out, err = runCLI(t, env.configPath, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(out, "Deleted 2 queued job(s)") {
		t.Fatalf("queue clear output: %q", out)
	}

	counts, err := env.store.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Queued != 0 {
		t.Fatalf("expected empty queue, got %d", counts.Queued)
	}
}

func TestCLIQueuePruneRemovesStaleLanguages(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "nl", 0); err != nil {
		t.Fatalf("enqueue stale lang: %v", err)
	}
	if _, err := env.store.Enqueue(ctx, store.JobTranslatePage, "Main Page", "de", 0); err != nil {
		t.Fatalf("enqueue target lang: %v", err)
	}

	out, err := runCLI(t, env.configPath, "queue", "prune")
	if err != nil {
		t.Fatalf("queue prune: %v", err)
	}
	if !strings.Contains(out, "Pruned 1 job(s)") {
		t.Fatalf("prune output: %q", out)
	}

	jobs, err := env.store.ListJobs(ctx, store.JobQueued, 10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Lang != "de" {
		t.Fatalf("expected only the de job to survive: %+v", jobs)
	}
}

func TestCLIRunWritesReport(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.configPath, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "finished") || !strings.Contains(out, "Report:") {
		t.Fatalf("run output: %q", out)
	}

	entries, err := os.ReadDir(env.cfg.Paths.ReportDir)
	if err != nil {
		t.Fatalf("read report dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one report file, got %d", len(entries))
	}

	out, err = runCLI(t, env.configPath, "report")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "Mode: normal") {
		t.Fatalf("report output: %q", out)
	}

	out, err = runCLI(t, env.configPath, "report", "--json")
	if err != nil {
		t.Fatalf("report --json: %v", err)
	}
	if !strings.Contains(out, `"status": "finished"`) {
		t.Fatalf("report json output: %q", out)
	}
}

func TestCLIRunRejectsConflictingModes(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env.configPath, "run", "--refresh", "--cache-only"); err == nil {
		t.Fatal("expected mode conflict error")
	}
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.ApplyStateEvent(ctx, "Main Page", "de", pagestate.EventTranslated, pagestate.ActorBot, 7); err != nil {
		t.Fatalf("apply state: %v", err)
	}

	out, err := runCLI(t, env.configPath, "status", "Main Page")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "machine") {
		t.Fatalf("status output: %q", out)
	}

	out, err = runCLI(t, env.configPath, "status", "Other Page")
	if err != nil {
		t.Fatalf("status other: %v", err)
	}
	if !strings.Contains(out, "No translation states") {
		t.Fatalf("status for unknown page: %q", out)
	}
}

func TestCLIConfigInit(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	payload, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	if !strings.Contains(string(payload), "[languages]") {
		t.Fatalf("sample config content: %s", payload)
	}

	cmd = newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected overwrite refusal without --force")
	}
}
