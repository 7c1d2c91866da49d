package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
environment: test
log:
  level: info
  format: console
  output: stdout
clickhouse:
  host: localhost
  port: 9000
  database: swing
universe:
  index: NIFTY_500
funnel:
  threshold: 8.0
  window_days: 4
  max_up_pct: 2.0
  max_down_pct: 2.0
  interval: 1d
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Funnel.Threshold != 8.0 || c.Funnel.WindowDays != 4 {
		t.Fatalf("unexpected funnel config %+v", c.Funnel)
	}
}

func TestValidateRejectsZeroWindow(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Funnel.WindowDays = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for window_days=0")
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("WATCHLIST", "RELIANCE.NS,TCS.NS")

	c, err := LoadWithEnv(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ClickHouse.Host != "ch.internal" {
		t.Fatalf("env override not applied: %s", c.ClickHouse.Host)
	}
	if len(c.Universe.Watchlist) != 2 {
		t.Fatalf("watchlist override not applied: %v", c.Universe.Watchlist)
	}
}
