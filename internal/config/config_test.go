package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c := &Config{}
	c.SetDefaults()
	if c.Server.Port != 3150 {
		t.Fatalf("expected port 3150, got %d", c.Server.Port)
	}
	if c.Server.Host != "127.0.0.1" {
		t.Fatalf("expected default host")
	}
	if c.Log.Level != "info" {
		t.Fatalf("expected info level")
	}
	if c.Capture.RequestHeaderSize != 170 {
		t.Fatalf("unexpected header size %d", c.Capture.RequestHeaderSize)
	}
	if c.Capture.RemoveRetries != 5 || c.Capture.RemoveRetryDelay != time.Second {
		t.Fatalf("unexpected removal policy %d/%v", c.Capture.RemoveRetries, c.Capture.RemoveRetryDelay)
	}
	if c.Capture.ReadFailures != 5 {
		t.Fatalf("unexpected read failure bound %d", c.Capture.ReadFailures)
	}
	if c.Rules.BlueTipPassive != 0 || c.Rules.DoubleRainbowPassive != 0 {
		t.Fatalf("passive rules must stay disabled until configured")
	}
	if c.Rules.UsefulCutoff != 80 {
		t.Fatalf("unexpected cutoff %d", c.Rules.UsefulCutoff)
	}
	if c.Rules.FacilityAliases[601] != 101 || c.Rules.FacilityAliases[2305] != 106 {
		t.Fatalf("unexpected facility aliases %v", c.Rules.FacilityAliases)
	}
	if len(c.Helper.Rows) != 17 {
		t.Fatalf("expected 17 helper rows, got %d", len(c.Helper.Rows))
	}
	if c.Browser.Enabled {
		t.Fatalf("zero config must not switch the browser on")
	}
	if !Default().Browser.Enabled || !Default().Archive.Enabled {
		t.Fatalf("Default should enable browser sync and archiving")
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	content := "capture:\n  poll_interval: 500ms\nserver:\n  port: 8080\nbrowser:\n  enabled: false\n" +
		"rules:\n  facility_aliases:\n    4001: 101\n  friend_exceptions:\n    - card_id: 30160\n      scenario_id: 4\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.PollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", cfg.Capture.PollInterval)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Browser.Enabled {
		t.Fatalf("browser should be disabled by the file")
	}
	if !cfg.Archive.Enabled {
		t.Fatalf("archive should stay enabled when the file is silent")
	}
	// file aliases extend the built-in table
	if cfg.Rules.FacilityAliases[4001] != 101 || cfg.Rules.FacilityAliases[601] != 101 {
		t.Fatalf("unexpected aliases %v", cfg.Rules.FacilityAliases)
	}
	if len(cfg.Rules.FriendExceptions) != 1 || cfg.Rules.FriendExceptions[0].CardID != 30160 {
		t.Fatalf("unexpected friend exceptions %v", cfg.Rules.FriendExceptions)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.Dir != filepath.Join(home, ".trainlink", "captures") {
		t.Fatalf("unexpected capture dir %s", cfg.Capture.Dir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRAINLINK_SERVER_PORT", "9000")
	t.Setenv("TRAINLINK_POLL_INTERVAL", "1s")
	t.Setenv("TRAINLINK_BROWSER_ENABLED", "false")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 || cfg.Capture.PollInterval != time.Second || cfg.Browser.Enabled {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Server, cfg.Capture)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c := Default()
	c.Archive.Dir = filepath.Join(t.TempDir(), "archives")
	if err := c.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if _, err := os.Stat(c.Archive.Dir); err != nil {
		t.Fatalf("archive dir should be created: %v", err)
	}

	c.Capture.Dir = t.TempDir()
	if err := c.ValidateRun(); err == nil {
		t.Fatalf("expected run validation error without refdata.path")
	}
	c.RefData.Path = filepath.Join(t.TempDir(), "master.mdb")
	if err := c.ValidateRun(); err != nil {
		t.Fatalf("run validation failed: %v", err)
	}

	c.Capture.PollInterval = -time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected negative poll interval to fail")
	}
}
