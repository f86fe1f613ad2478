package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var baseEnv = map[string]string{
	"WORKER_ACTION":          "Quiet",
	"EB_APP_NAME":            "shop",
	"AWS_REGION":             "eu-west-1",
	"QUIET_COMMAND_DOC_NAME": "QuietDoc",
	"WAKE_COMMAND_DOC_NAME":  "WakeDoc",
	"STOP_COMMAND_DOC_NAME":  "StopDoc",
	"DOCUMENT_STACK_NAME":    "worker-docs",
	"SLACK_WEBHOOK":          "https://hooks.slack.test/T000",
	"NOTIFY_SLACK_CHANNEL":   "#ops",
}

var optionalKeys = []string{
	"ECS_CLUSTER_REGION",
	"EB_ENV_NAME_PATTERN_STRING",
	"AWS_ENDPOINT_URL",
	"POLL_MAX_ROUNDS",
	"POLL_INTERVAL_SECONDS",
	"SETTLE_DELAY_SECONDS",
	"NATS_URL",
	"DATABASE_URL",
	"REPORT_BUCKET",
	"PUSHGATEWAY_URL",
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, key := range requiredKeys {
		t.Setenv(key, "")
	}
	for _, key := range optionalKeys {
		t.Setenv(key, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, baseEnv)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Action != ActionQuiet {
		t.Fatalf("Action = %q, want quiet", cfg.Action)
	}
	if cfg.IdentityRegion != "us-east-1" {
		t.Fatalf("IdentityRegion = %q, want us-east-1", cfg.IdentityRegion)
	}
	if cfg.Pattern != "workers" {
		t.Fatalf("Pattern = %q, want workers", cfg.Pattern)
	}
	if cfg.Poll.MaxRounds != 360 || cfg.Poll.Interval != 10*time.Second || cfg.Poll.SettleDelay != 2*time.Second {
		t.Fatalf("Poll = %+v", cfg.Poll)
	}
	if cfg.Documents.Quiet != "QuietDoc" {
		t.Fatalf("Documents.Quiet = %q, want QuietDoc", cfg.Documents.Quiet)
	}
	if cfg.Sinks != (SinksConfig{}) {
		t.Fatalf("Sinks = %+v, want all disabled", cfg.Sinks)
	}
}

func TestLoadReportsAllMissingKeys(t *testing.T) {
	env := map[string]string{}
	for k, v := range baseEnv {
		env[k] = v
	}
	delete(env, "EB_APP_NAME")
	delete(env, "SLACK_WEBHOOK")
	setEnv(t, env)

	_, err := Load("", nil)
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("Load() error = %v, want ErrMissing", err)
	}
	for _, key := range []string{"EB_APP_NAME", "SLACK_WEBHOOK"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown action", key: "WORKER_ACTION", val: "restart"},
		{name: "zero rounds", key: "POLL_MAX_ROUNDS", val: "0"},
		{name: "non numeric rounds", key: "POLL_MAX_ROUNDS", val: "many"},
		{name: "negative interval", key: "POLL_INTERVAL_SECONDS", val: "-1"},
		{name: "zero interval", key: "POLL_INTERVAL_SECONDS", val: "0"},
		{name: "bad settle delay", key: "SETTLE_DELAY_SECONDS", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, baseEnv)
			t.Setenv(tt.key, tt.val)

			if _, err := Load("", nil); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", tt.key, tt.val)
			}
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	env := map[string]string{}
	for k, v := range baseEnv {
		env[k] = v
	}
	delete(env, "NOTIFY_SLACK_CHANNEL")
	setEnv(t, env)
	t.Setenv("EB_ENV_NAME_PATTERN_STRING", "Sidekiq")

	file := filepath.Join(t.TempDir(), "snowwhite.yaml")
	content := "NOTIFY_SLACK_CHANNEL: \"#from-file\"\nEB_ENV_NAME_PATTERN_STRING: ignored\nPOLL_MAX_ROUNDS: \"5\"\nPOLL_INTERVAL_SECONDS: \"0.5\"\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(file, map[string]string{"WORKER_ACTION": "stop"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Slack.Channel != "#from-file" {
		t.Fatalf("Channel = %q, want #from-file", cfg.Slack.Channel)
	}
	if cfg.Pattern != "Sidekiq" {
		t.Fatalf("Pattern = %q, want env value Sidekiq", cfg.Pattern)
	}
	if cfg.Action != ActionStop {
		t.Fatalf("Action = %q, want stop override", cfg.Action)
	}
	if cfg.Poll.MaxRounds != 5 || cfg.Poll.Interval != 500*time.Millisecond {
		t.Fatalf("Poll = %+v", cfg.Poll)
	}
}

func TestLoadAllowsZeroSettleDelay(t *testing.T) {
	setEnv(t, baseEnv)
	t.Setenv("SETTLE_DELAY_SECONDS", "0")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Poll.SettleDelay != 0 || cfg.Poll.Interval != 10*time.Second {
		t.Fatalf("Poll = %+v", cfg.Poll)
	}
}

func TestLoadMissingFile(t *testing.T) {
	setEnv(t, baseEnv)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
