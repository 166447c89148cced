package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ReportFormat != "text" || c.LogLevel != "info" || c.ServeAddr != ":8080" || c.ServeBodyLimitMB != 10 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.StudiesDir != filepath.Join(home, ".nca", "studies") {
		t.Fatalf("studies_dir = %s", c.StudiesDir)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	c := &Global{}
	for key, val := range map[string]string{
		"auc_end":           "24",
		"terminal_times":    "8, 12 24",
		"strict":            "true",
		"default_stats":     "mean,sd",
		"generate_subjects": "5",
		"generate_seed":     "99",
	} {
		if err := c.Set(key, val); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AUCEnd == nil || *got.AUCEnd != 24 || !got.Strict || got.GenerateSubjects != 5 || got.GenerateSeed != 99 {
		t.Fatalf("round trip lost values: %+v", got)
	}
	if len(got.TerminalTimes) != 3 || got.TerminalTimes[2] != 24 {
		t.Fatalf("terminal_times = %v", got.TerminalTimes)
	}
	if strings.Join(got.DefaultStats, ",") != "mean,sd" {
		t.Fatalf("default_stats = %v", got.DefaultStats)
	}
}

func TestOptionalFloatsKeepExplicitZero(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	unset := filepath.Join(dir, "unset.yaml")
	if err := Save(&Global{}, unset); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(unset)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AUCEnd != nil || got.GenerateDose != nil {
		t.Fatalf("unset values should stay nil: auc_end=%v generate_dose=%v", got.AUCEnd, got.GenerateDose)
	}

	zero := filepath.Join(dir, "zero.yaml")
	c := &Global{}
	if err := c.Set("auc_end", "0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("generate_dose", "0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Save(c, zero); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = Load(zero)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AUCEnd == nil || *got.AUCEnd != 0 || got.GenerateDose == nil || *got.GenerateDose != 0 {
		t.Fatalf("explicit zero lost: auc_end=%v generate_dose=%v", got.AUCEnd, got.GenerateDose)
	}

	if err := c.Set("auc_end", ""); err != nil || c.AUCEnd != nil {
		t.Fatalf("empty value should clear auc_end: %v %v", c.AUCEnd, err)
	}
}

func TestEnvOverrideOptionalFloat(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NCA_AUC_END", "12.5")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.AUCEnd == nil || *c.AUCEnd != 12.5 {
		t.Fatalf("auc_end = %v, want 12.5 from env", c.AUCEnd)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NCA_REPORT_FORMAT", "json")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ReportFormat != "json" {
		t.Fatalf("report_format = %s, want json from env", c.ReportFormat)
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	c := &Global{}
	if err := c.Set("nope", "1"); err == nil || !strings.Contains(err.Error(), "valid keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	if err := c.Set("workers", "many"); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := c.Set("serve_max_generate_rows", "lots"); err == nil {
		t.Fatalf("expected serve_max_generate_rows parse error")
	}
	if err := c.Set("log_format", "xml"); err == nil {
		t.Fatalf("expected log_format error")
	}
}
