package config

import "time"

// Action values accepted in WORKER_ACTION.
const (
	ActionQuiet = "quiet"
	ActionWake  = "wake"
	ActionStop  = "stop"
)

type Config struct {
	Action         string
	Application    string
	Region         string
	IdentityRegion string
	Pattern        string
	AWSEndpoint    string
	DocumentStack  string
	Documents      DocumentsConfig
	Slack          SlackConfig
	Poll           PollConfig
	Sinks          SinksConfig
}

// DocumentsConfig holds the logical (stack resource) names of the SSM documents.
type DocumentsConfig struct {
	Quiet string
	Wake  string
	Stop  string
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type PollConfig struct {
	MaxRounds   int
	Interval    time.Duration
	SettleDelay time.Duration
}

// SinksConfig lists the optional destinations of the finished run. Empty
// values disable the sink.
type SinksConfig struct {
	NATSURL        string
	DatabaseURL    string
	ReportBucket   string
	PushgatewayURL string
}
