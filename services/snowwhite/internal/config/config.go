package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultIdentityRegion = "us-east-1"
	defaultPattern        = "workers"
	defaultMaxRounds      = 360
	defaultInterval       = 10 * time.Second
	defaultSettleDelay    = 2 * time.Second
)

// ErrMissing is wrapped by Load when required settings are absent.
var ErrMissing = errors.New("missing required configuration")

var requiredKeys = []string{
	"WORKER_ACTION",
	"EB_APP_NAME",
	"AWS_REGION",
	"QUIET_COMMAND_DOC_NAME",
	"WAKE_COMMAND_DOC_NAME",
	"STOP_COMMAND_DOC_NAME",
	"DOCUMENT_STACK_NAME",
	"SLACK_WEBHOOK",
	"NOTIFY_SLACK_CHANNEL",
}

// Load reads the task configuration from the environment. When file is
// non-empty it must be a YAML mapping of the same keys; the environment wins
// over the file and overrides win over both.
func Load(file string, overrides map[string]string) (Config, error) {
	src, err := newSource(file, overrides)
	if err != nil {
		return Config{}, err
	}

	var missing []string
	for _, key := range requiredKeys {
		if src.get(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	cfg := Config{
		Action:         strings.ToLower(src.get("WORKER_ACTION")),
		Application:    src.get("EB_APP_NAME"),
		Region:         src.get("AWS_REGION"),
		IdentityRegion: src.getDefault("ECS_CLUSTER_REGION", defaultIdentityRegion),
		Pattern:        src.getDefault("EB_ENV_NAME_PATTERN_STRING", defaultPattern),
		AWSEndpoint:    src.get("AWS_ENDPOINT_URL"),
		DocumentStack:  src.get("DOCUMENT_STACK_NAME"),
		Documents: DocumentsConfig{
			Quiet: src.get("QUIET_COMMAND_DOC_NAME"),
			Wake:  src.get("WAKE_COMMAND_DOC_NAME"),
			Stop:  src.get("STOP_COMMAND_DOC_NAME"),
		},
		Slack: SlackConfig{
			WebhookURL: src.get("SLACK_WEBHOOK"),
			Channel:    src.get("NOTIFY_SLACK_CHANNEL"),
		},
		Sinks: SinksConfig{
			NATSURL:        src.get("NATS_URL"),
			DatabaseURL:    src.get("DATABASE_URL"),
			ReportBucket:   src.get("REPORT_BUCKET"),
			PushgatewayURL: src.get("PUSHGATEWAY_URL"),
		},
	}

	switch cfg.Action {
	case ActionQuiet, ActionWake, ActionStop:
	default:
		return Config{}, fmt.Errorf("invalid WORKER_ACTION %q: must be one of quiet, wake, stop", cfg.Action)
	}

	if cfg.Poll.MaxRounds, err = src.getInt("POLL_MAX_ROUNDS", defaultMaxRounds, 1); err != nil {
		return Config{}, err
	}
	if cfg.Poll.Interval, err = src.getSeconds("POLL_INTERVAL_SECONDS", defaultInterval, false); err != nil {
		return Config{}, err
	}
	if cfg.Poll.SettleDelay, err = src.getSeconds("SETTLE_DELAY_SECONDS", defaultSettleDelay, true); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

type source struct {
	file      map[string]string
	overrides map[string]string
}

func newSource(file string, overrides map[string]string) (source, error) {
	src := source{overrides: overrides}
	if file == "" {
		return src, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return source{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &src.file); err != nil {
		return source{}, fmt.Errorf("parse config file %s: %w", file, err)
	}
	return src, nil
}

func (s source) get(key string) string {
	if v := strings.TrimSpace(s.overrides[key]); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[key])
}

func (s source) getDefault(key, def string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return def
}

func (s source) getInt(key string, def, min int) (int, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < min {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return i, nil
}

// getSeconds parses a number of seconds. Zero is rejected unless allowZero.
func (s source) getSeconds(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 || (secs == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
