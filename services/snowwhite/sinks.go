package snowwhite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"snowwhite/pkg/bus"
	"snowwhite/pkg/metrics"
)

const runFinishedSubject = "snowwhite.runs.finished"

// Sink receives every finished run. Sink errors are logged by the Runner and
// never fail the run.
type Sink interface {
	Name() string
	Record(ctx context.Context, report Report) error
}

type instanceSummary struct {
	InstanceID   string `json:"instance_id"`
	Environment  string `json:"environment"`
	Outcome      string `json:"outcome"`
	ResponseCode *int   `json:"response_code,omitempty"`
}

// runSummary is the serialised form of a Report shared by the sinks.
type runSummary struct {
	RunID       uuid.UUID         `json:"run_id"`
	Action      Action            `json:"action"`
	Application string            `json:"application"`
	Region      string            `json:"region"`
	Pattern     string            `json:"pattern"`
	Actor       Actor             `json:"actor"`
	CommandID   string            `json:"command_id,omitempty"`
	Rounds      int               `json:"rounds"`
	AnyFailed   bool              `json:"any_failed"`
	Interrupted bool              `json:"interrupted,omitempty"`
	Targets     int               `json:"targets"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Pending     int               `json:"pending"`
	Instances   []instanceSummary `json:"instances"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

func summarize(report Report) runSummary {
	res := report.Result
	s := runSummary{
		RunID:       report.RunID,
		Action:      report.Action,
		Application: report.Application,
		Region:      report.Region,
		Pattern:     report.Pattern,
		Actor:       report.Actor,
		CommandID:   res.CommandID,
		Rounds:      res.Rounds,
		AnyFailed:   res.AnyFailed,
		Interrupted: res.Interrupted,
		Targets:     len(res.Targets),
		Instances:   make([]instanceSummary, 0, len(res.Targets)),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}

	for _, t := range res.Targets {
		outcome := res.Outcomes[t.InstanceID]
		inst := instanceSummary{
			InstanceID:  t.InstanceID,
			Environment: t.Environment,
			Outcome:     outcome.State.String(),
		}
		switch outcome.State {
		case OutcomeSuccess:
			s.Succeeded++
		case OutcomeFailed:
			s.Failed++
			code := outcome.Code
			inst.ResponseCode = &code
		default:
			s.Pending++
		}
		s.Instances = append(s.Instances, inst)
	}
	return s
}

// EventPublisher announces finished runs on NATS JetStream.
type EventPublisher struct {
	bus *bus.Bus
}

func NewEventPublisher(b *bus.Bus) *EventPublisher {
	return &EventPublisher{bus: b}
}

func (p *EventPublisher) Name() string { return "nats" }

func (p *EventPublisher) Record(ctx context.Context, report Report) error {
	return p.bus.Publish(ctx, runFinishedSubject, summarize(report))
}

// MetricsPusher pushes the run's batch metrics to a Pushgateway.
type MetricsPusher struct {
	gatewayURL string
}

func NewMetricsPusher(gatewayURL string) *MetricsPusher {
	return &MetricsPusher{gatewayURL: gatewayURL}
}

func (p *MetricsPusher) Name() string { return "pushgateway" }

func (p *MetricsPusher) Record(ctx context.Context, report Report) error {
	s := summarize(report)
	m := metrics.NewRun()
	m.Observe(s.Succeeded, s.Failed, s.Pending, s.Rounds, s.StartedAt, s.FinishedAt)
	return m.Push(ctx, p.gatewayURL, s.Application, string(s.Action))
}
