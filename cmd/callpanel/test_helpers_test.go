package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"callpanel/internal/api"
	"callpanel/internal/config"
	"callpanel/internal/daemon"
	"callpanel/internal/logging"
	"callpanel/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("CALLPANEL_API_TOKEN", "")

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("cli-token"), testsupport.WithLeaseTiming(60, 1))
	engine, st := testsupport.NewEngine(t, cfg, nil)
	d, err := daemon.New(cfg, st, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	fileCfg := *cfg
	fileCfg.Paths.APIBind = d.Addr()
	configPath := filepath.Join(base, "callpanel.toml")
	writeTestConfig(t, configPath, &fileCfg)

	return &cliTestEnv{cfg: cfg, daemon: d, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runAs(t *testing.T, env *cliTestEnv, actorID, actorName string, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"--actor-id", actorID, "--actor-name", actorName}, args...)
	out, _, err := runCLI(t, env.configPath, full...)
	return out, err
}

func createRecord(t *testing.T, env *cliTestEnv, agent string) int64 {
	t.Helper()
	out, _, err := runCLI(t, env.configPath, "--json", "create", agent, "--group", "north")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var resp api.RecordDetailResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode create output %q: %v", out, err)
	}
	return resp.Detail.Record.ID
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q", substr)
	}
	requireContains(t, err.Error(), substr)
}
