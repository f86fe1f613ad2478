package snowwhite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"snowwhite/pkg/telemetry"
	"snowwhite/services/snowwhite/internal/config"
)

const (
	tracerName = "snowwhite"
	// Budget for the messages sent after the run context is cancelled.
	lateNotifyTimeout = 15 * time.Second
)

type identityResolver interface {
	Resolve(ctx context.Context) Actor
}

type targetEnumerator interface {
	Enumerate(ctx context.Context, app, pattern string) ([]InstanceTarget, error)
}

type notifier interface {
	Notify(ctx context.Context, destination, text string) bool
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Identity   identityResolver
	Targets    targetEnumerator
	Dispatcher *Dispatcher
	Tracker    *Tracker
	Notifier   notifier
	Sinks      []Sink
	Logger     *log.Logger
}

// Runner executes one quiet/wake/stop run end to end.
type Runner struct {
	cfg  config.Config
	deps Deps

	tracer trace.Tracer
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

func NewRunner(cfg config.Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Identity == nil:
		return nil, errors.New("identity resolver is required")
	case deps.Targets == nil:
		return nil, errors.New("target enumerator is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case deps.Tracker == nil:
		return nil, errors.New("tracker is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	}

	return &Runner{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		sleep:  sleepContext,
	}, nil
}

// Run resolves the actor, finds the targets, submits the command, waits for
// every instance and reports to Slack. Instance failures are reported, not
// returned; errors mean the run could not be carried out.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{
		RunID:       uuid.New(),
		Action:      Action(r.cfg.Action),
		Application: r.cfg.Application,
		Region:      r.cfg.Region,
		Pattern:     r.cfg.Pattern,
		StartedAt:   r.now().UTC(),
	}
	sc := scope{action: report.Action, app: report.Application, region: report.Region, pattern: report.Pattern}

	ctx, span := r.tracer.Start(ctx, "snowwhite.run", trace.WithAttributes(
		attribute.String("run.id", report.RunID.String()),
		attribute.String("run.action", string(report.Action)),
		attribute.String("eb.application", report.Application),
	))
	defer span.End()
	logger := telemetry.WithSpan(ctx, r.deps.Logger)

	logger.Printf("INFO run %s: %s workers of %s (%s) matching %q", report.RunID, report.Action, report.Application, report.Region, report.Pattern)

	report.Actor = r.resolveActor(ctx, logger)

	targets, err := r.enumerate(ctx)
	if err != nil {
		return r.fail(span, logger, report, err)
	}
	report.Result = RunResult{Targets: targets, Outcomes: map[string]Outcome{}}

	if len(targets) == 0 {
		logger.Printf("INFO no environments matching %q in %s", report.Pattern, report.Application)
		r.notify(ctx, r.directOrChannel(report.Actor), sc.noTargetsMessage())
		return r.finish(ctx, logger, report), nil
	}

	if report.Actor.SlackID != "" {
		r.notify(ctx, report.Actor.SlackID, sc.startDirectMessage())
	}
	r.notify(ctx, r.cfg.Slack.Channel, sc.startChannelMessage(report.Actor))

	commandID, err := r.dispatch(ctx, report, targets)
	if err != nil {
		lateCtx, cancel := lateContext(ctx)
		defer cancel()
		r.broadcast(lateCtx, report.Actor, sc.dispatchFailedMessage(err))
		return r.fail(span, logger, report, err)
	}
	logger.Printf("INFO command %s submitted", commandID)

	// From here on the command is out: every path reports and records.
	result := pendingResult(commandID, targets)
	var trackErr error
	if trackErr = r.sleep(ctx, r.cfg.Poll.SettleDelay); trackErr != nil {
		result.Interrupted = true
	} else {
		result, trackErr = r.track(ctx, commandID, targets)
	}
	report.Result = result

	lateCtx, cancel := lateContext(ctx)
	defer cancel()
	r.broadcast(lateCtx, report.Actor, sc.resultMessage(result))

	report = r.finish(lateCtx, logger, report)
	if trackErr != nil {
		return r.fail(span, logger, report, trackErr)
	}
	span.SetAttributes(
		attribute.Int("run.rounds", result.Rounds),
		attribute.Bool("run.any_failed", result.AnyFailed),
	)
	return report, nil
}

func (r *Runner) resolveActor(ctx context.Context, logger *log.Logger) Actor {
	ctx, span := r.tracer.Start(ctx, "identity")
	defer span.End()

	actor := r.deps.Identity.Resolve(ctx)
	if actor.User != "" {
		logger.Printf("INFO run started by %s", actor.User)
	}
	return actor
}

func (r *Runner) enumerate(ctx context.Context) ([]InstanceTarget, error) {
	ctx, span := r.tracer.Start(ctx, "enumerate")
	defer span.End()

	targets, err := r.deps.Targets.Enumerate(ctx, r.cfg.Application, r.cfg.Pattern)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("targets", len(targets)))
	return targets, nil
}

func (r *Runner) dispatch(ctx context.Context, report Report, targets []InstanceTarget) (string, error) {
	ctx, span := r.tracer.Start(ctx, "dispatch")
	defer span.End()

	comment := fmt.Sprintf("snowwhite %s run %s", report.Action, report.RunID)
	commandID, err := r.deps.Dispatcher.Dispatch(ctx, report.Action, targets, comment)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("ssm.command_id", commandID))
	return commandID, nil
}

func (r *Runner) track(ctx context.Context, commandID string, targets []InstanceTarget) (RunResult, error) {
	ctx, span := r.tracer.Start(ctx, "track")
	defer span.End()

	result, err := r.deps.Tracker.Track(ctx, commandID, targets)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (r *Runner) directOrChannel(actor Actor) string {
	if actor.SlackID != "" {
		return actor.SlackID
	}
	return r.cfg.Slack.Channel
}

// broadcast sends text to the actor, when known, and to the channel.
func (r *Runner) broadcast(ctx context.Context, actor Actor, text string) {
	if actor.SlackID != "" {
		r.notify(ctx, actor.SlackID, text)
	}
	r.notify(ctx, r.cfg.Slack.Channel, text)
}

func (r *Runner) notify(ctx context.Context, destination, text string) {
	ctx, span := r.tracer.Start(ctx, "notify", trace.WithAttributes(attribute.String("slack.destination", destination)))
	defer span.End()

	if !r.deps.Notifier.Notify(ctx, destination, text) {
		span.SetStatus(codes.Error, "slack post failed")
	}
}

// finish stamps the report and hands it to every sink.
func (r *Runner) finish(ctx context.Context, logger *log.Logger, report Report) Report {
	report.FinishedAt = r.now().UTC()
	for _, sink := range r.deps.Sinks {
		if err := sink.Record(ctx, report); err != nil {
			logger.Printf("WARN record run in %s: %v", sink.Name(), err)
		}
	}
	return report
}

func (r *Runner) fail(span trace.Span, logger *log.Logger, report Report, err error) (Report, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Printf("ERROR run %s: %v", report.RunID, err)
	if report.FinishedAt.IsZero() {
		report.FinishedAt = r.now().UTC()
	}
	return report, err
}

func lateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), lateNotifyTimeout)
}
