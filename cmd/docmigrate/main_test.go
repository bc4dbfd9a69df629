package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/config"
	"github.com/loykin/docmigrate/internal/lock"
	"github.com/loykin/docmigrate/internal/store"
	"github.com/spf13/viper"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { common.SetDefaultLogger(common.NewNopLogger()) })
	cmd := newRootCmd(viper.New())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteArgs(t *testing.T) (string, []string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracking.db")
	return path, []string{"-d", "app", "--store", "sqlite", "--store-path", path, "--log-level", "error"}
}

func TestUp_MissingDatabaseIsConfigurationError(t *testing.T) {
	_, err := execute(t, "up", "--uri", "mongodb://unreachable.invalid:1/")
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "database" {
		t.Fatalf("expected database ConfigurationError, got %v", err)
	}
}

func TestUp_InvalidStoreIsConfigurationError(t *testing.T) {
	_, err := execute(t, "-d", "app", "--store", "redis")
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "store.type" {
		t.Fatalf("expected store.type ConfigurationError, got %v", err)
	}
}

func TestUp_DryRunListsChangelog(t *testing.T) {
	_, args := sqliteArgs(t)
	out, err := execute(t, append([]string{"up", "--dry-run"}, args...)...)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	// main registers the changelog; the test binary leaves the default registry empty.
	if !strings.Contains(out, "no changesets registered") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRootCommandAcceptsDryRun(t *testing.T) {
	_, args := sqliteArgs(t)
	if _, err := execute(t, append([]string{"--dry-run"}, args...)...); err != nil {
		t.Fatalf("root dry run: %v", err)
	}
}

func TestStatus_PrintsFreeLock(t *testing.T) {
	_, args := sqliteArgs(t)
	out, err := execute(t, append([]string{"status"}, args...)...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "lock: free") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestUnlock_RequiresForce(t *testing.T) {
	_, args := sqliteArgs(t)
	_, err := execute(t, append([]string{"unlock"}, args...)...)
	if !errors.Is(err, errUnlockNeedsForce) {
		t.Fatalf("expected errUnlockNeedsForce, got %v", err)
	}
}

func TestUnlock_ForceRemovesStuckLock(t *testing.T) {
	ctx := context.Background()
	path, args := sqliteArgs(t)

	st, err := store.Open(ctx, store.Config{Driver: store.DriverSqlite, DriverConfig: &store.SqliteConfig{Path: path}}, common.NewNopLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := lock.NewManager(st, common.NewNopLogger()).Acquire(ctx, "crashed"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_ = st.Close()

	out, err := execute(t, append([]string{"unlock", "--force"}, args...)...)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !strings.Contains(out, "lock held by crashed released") {
		t.Fatalf("unexpected output %q", out)
	}
	out, err = execute(t, append([]string{"status"}, args...)...)
	if err != nil || !strings.Contains(out, "lock: free") {
		t.Fatalf("status after unlock: %q, %v", out, err)
	}
}

func TestConfigFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docmigrate.yaml")
	yml := "database: fromfile\nstore:\n  type: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "t.db") + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOCMIGRATE_LEASE", "45s")

	v := viper.New()
	cmd := newRootCmd(v)
	cmd.SetArgs([]string{"--config", path, "-d", "fromflag"})
	if err := cmd.ParseFlags([]string{"--config", path, "-d", "fromflag"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	m, err := loadConfig(cmd, v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	t.Cleanup(func() { common.SetDefaultLogger(common.NewNopLogger()) })
	if m.Config.Database != "fromflag" {
		t.Fatalf("flag should win over file, got %q", m.Config.Database)
	}
	if m.Config.Store.Type != "sqlite" {
		t.Fatalf("store type from file not applied: %q", m.Config.Store.Type)
	}
	if m.Config.Lease.Seconds() != 45 {
		t.Fatalf("lease from env not applied: %s", m.Config.Lease)
	}
}

func TestConfigFileMissing(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "-d", "app")
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "config" {
		t.Fatalf("expected config ConfigurationError, got %v", err)
	}
}
