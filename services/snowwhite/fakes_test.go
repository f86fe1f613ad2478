package snowwhite

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

var errThrottled = errors.New("ThrottlingException: rate exceeded")

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// reply is one scripted answer to ListCommandInvocations.
type reply struct {
	status ssmtypes.CommandInvocationStatus
	code   int32
	err    error
	// empty returns no invocation record.
	empty bool
}

var (
	inProgress = reply{status: ssmtypes.CommandInvocationStatusInProgress}
	succeeded  = reply{status: ssmtypes.CommandInvocationStatusSuccess}
	notYet     = reply{empty: true}
	queryError = reply{err: errThrottled}
)

func failedWith(code int32) reply {
	return reply{status: ssmtypes.CommandInvocationStatusFailed, code: code}
}

// fakeSSM scripts per-instance replies; the last reply repeats once the
// script runs out.
type fakeSSM struct {
	commandID string
	sendErr   error
	sent      []*ssm.SendCommandInput

	replies map[string][]reply
	calls   map[string]int
}

func newFakeSSM(replies map[string][]reply) *fakeSSM {
	return &fakeSSM{
		commandID: "cmd-0001",
		replies:   replies,
		calls:     map[string]int{},
	}
}

func (f *fakeSSM) SendCommand(ctx context.Context, in *ssm.SendCommandInput, _ ...func(*ssm.Options)) (*ssm.SendCommandOutput, error) {
	f.sent = append(f.sent, in)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &ssm.SendCommandOutput{Command: &ssmtypes.Command{CommandId: aws.String(f.commandID)}}, nil
}

func (f *fakeSSM) ListCommandInvocations(ctx context.Context, in *ssm.ListCommandInvocationsInput, _ ...func(*ssm.Options)) (*ssm.ListCommandInvocationsOutput, error) {
	id := aws.ToString(in.InstanceId)
	script := f.replies[id]
	idx := f.calls[id]
	f.calls[id]++
	if len(script) == 0 {
		return &ssm.ListCommandInvocationsOutput{}, nil
	}
	if idx >= len(script) {
		idx = len(script) - 1
	}
	r := script[idx]
	if r.err != nil {
		return nil, r.err
	}
	if r.empty {
		return &ssm.ListCommandInvocationsOutput{}, nil
	}
	inv := ssmtypes.CommandInvocation{
		CommandId:  in.CommandId,
		InstanceId: in.InstanceId,
		Status:     r.status,
		CommandPlugins: []ssmtypes.CommandPlugin{
			{Name: aws.String("aws:runShellScript"), ResponseCode: r.code},
		},
	}
	return &ssm.ListCommandInvocationsOutput{CommandInvocations: []ssmtypes.CommandInvocation{inv}}, nil
}

type fakeStacks struct {
	resources map[string]string
	err       error
	calls     int
}

func (f *fakeStacks) DescribeStackResource(ctx context.Context, in *cloudformation.DescribeStackResourceInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackResourceOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	physical, ok := f.resources[aws.ToString(in.LogicalResourceId)]
	if !ok {
		return nil, errors.New("ValidationError: Resource " + aws.ToString(in.LogicalResourceId) + " does not exist for stack " + aws.ToString(in.StackName))
	}
	return &cloudformation.DescribeStackResourceOutput{
		StackResourceDetail: &cfntypes.StackResourceDetail{
			LogicalResourceId:  in.LogicalResourceId,
			PhysicalResourceId: aws.String(physical),
		},
	}, nil
}

// sleepRecorder replaces the tracker's sleep.
type sleepRecorder struct {
	durations []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	return ctx.Err()
}

func targetsOf(pairs ...string) []InstanceTarget {
	var out []InstanceTarget
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, InstanceTarget{InstanceID: pairs[i], Environment: pairs[i+1]})
	}
	return out
}
