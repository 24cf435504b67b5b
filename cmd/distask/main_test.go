package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, `
telegram:
  token: "123:abc"
scheduler:
  enabled: true
  tick: "@every 30s"
storage:
  driver: sqlite
  path: "`+filepath.Join(dir, "distask.db")+`"
`)
	out, err := execute(t, "check-config", "--config", p)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: "+p)
	assert.Contains(t, out, "tick=@every 30s")
}

func TestCheckConfigRejectsBadTick(t *testing.T) {
	p := writeConfig(t, `
telegram:
  token: "123:abc"
scheduler:
  tick: "@every 10m"
storage:
  driver: sqlite
  path: "./x.db"
`)
	_, err := execute(t, "check-config", "--config", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.tick")
}

func TestMigrateCreatesSchema(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "data", "distask.db")
	p := writeConfig(t, `
telegram:
  token: "123:abc"
storage:
  driver: sqlite
  path: "`+db+`"
`)
	out, err := execute(t, "migrate", "-c", p)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version ")
	assert.NotContains(t, out, "schema version 0")
	_, err = os.Stat(db)
	assert.NoError(t, err)
}
