package snowwhite

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	DefaultMaxRounds    = 360
	DefaultPollInterval = 10 * time.Second
)

// Tracker polls the per-instance invocations of a submitted command until
// every instance is terminal or the round budget is spent.
//
// A round queries each still-pending instance once. Query errors leave the
// instance pending for the next round. Terminal outcomes are never revisited.
type Tracker struct {
	invocations InvocationLister
	maxRounds   int
	interval    time.Duration
	logger      *log.Logger
	sleep       func(context.Context, time.Duration) error
}

// NewTracker returns a Tracker with at most maxRounds rounds spaced by
// interval. Non-positive values select the defaults.
func NewTracker(invocations InvocationLister, maxRounds int, interval time.Duration, logger *log.Logger) *Tracker {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{
		invocations: invocations,
		maxRounds:   maxRounds,
		interval:    interval,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Track returns the outcome of commandID on every target. The result is
// complete even when ctx is cancelled mid-way; the context error is returned
// alongside it.
func (t *Tracker) Track(ctx context.Context, commandID string, targets []InstanceTarget) (RunResult, error) {
	result := pendingResult(commandID, targets)
	if len(targets) == 0 {
		return result, nil
	}

	for round := 1; round <= t.maxRounds; round++ {
		result.Rounds = round

		for _, target := range targets {
			if result.Outcomes[target.InstanceID].State.Terminal() {
				continue
			}
			if err := ctx.Err(); err != nil {
				result.Interrupted = true
				return result, err
			}

			outcome, err := t.query(ctx, commandID, target.InstanceID)
			if err != nil {
				t.logger.Printf("WARN status query for %s (%s) in command %s failed: %v", target.InstanceID, target.Environment, commandID, err)
				continue
			}

			switch outcome.State {
			case OutcomeSuccess:
				result.Outcomes[target.InstanceID] = outcome
				t.logger.Printf("INFO %s (%s) succeeded", target.InstanceID, target.Environment)
			case OutcomeFailed:
				result.Outcomes[target.InstanceID] = outcome
				result.AnyFailed = true
				t.logger.Printf("WARN %s (%s) failed with response code %d", target.InstanceID, target.Environment, outcome.Code)
			}
		}

		pending := countPending(result)
		if pending == 0 {
			return result, nil
		}
		t.logger.Printf("INFO round %d/%d: %d of %d instances pending", round, t.maxRounds, pending, len(targets))

		if round == t.maxRounds {
			break
		}
		if err := t.sleep(ctx, t.interval); err != nil {
			result.Interrupted = true
			return result, err
		}
	}

	t.logger.Printf("WARN polling budget of %d rounds exhausted with %d instances pending", t.maxRounds, countPending(result))
	return result, nil
}

func (t *Tracker) query(ctx context.Context, commandID, instanceID string) (Outcome, error) {
	out, err := t.invocations.ListCommandInvocations(ctx, &ssm.ListCommandInvocationsInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(instanceID),
		Details:    true,
	})
	if err != nil {
		return Outcome{}, err
	}
	if out == nil || len(out.CommandInvocations) == 0 {
		return Outcome{State: OutcomePending}, nil
	}
	return classifyInvocation(out.CommandInvocations[0]), nil
}

func classifyInvocation(inv ssmtypes.CommandInvocation) Outcome {
	switch inv.Status {
	case ssmtypes.CommandInvocationStatusSuccess:
		return Outcome{State: OutcomeSuccess}
	case ssmtypes.CommandInvocationStatusCancelled,
		ssmtypes.CommandInvocationStatusTimedOut,
		ssmtypes.CommandInvocationStatusFailed:
		return Outcome{State: OutcomeFailed, Code: responseCode(inv.CommandPlugins)}
	default:
		return Outcome{State: OutcomePending}
	}
}

// responseCode picks the first non-zero plugin response code, falling back to
// the first plugin's code, or CodeUnknown without plugin details.
func responseCode(plugins []ssmtypes.CommandPlugin) int {
	if len(plugins) == 0 {
		return CodeUnknown
	}
	for _, p := range plugins {
		if p.ResponseCode != 0 {
			return int(p.ResponseCode)
		}
	}
	return int(plugins[0].ResponseCode)
}

func countPending(result RunResult) int {
	n := 0
	for _, outcome := range result.Outcomes {
		if !outcome.State.Terminal() {
			n++
		}
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
