package snowwhite

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

var testDocuments = map[Action]string{
	ActionQuiet: "QuietWorkersDocument",
	ActionWake:  "WakeWorkersDocument",
	ActionStop:  "StopWorkersDocument",
}

func newTestDispatcher(stacks *fakeStacks, api *fakeSSM) *Dispatcher {
	return NewDispatcher(stacks, api, "worker-docs", testDocuments, discardLogger())
}

func TestDispatchSubmitsAllInstances(t *testing.T) {
	stacks := &fakeStacks{resources: map[string]string{"WakeWorkersDocument": "worker-docs-Wake-AB12"}}
	api := newFakeSSM(nil)
	d := newTestDispatcher(stacks, api)

	id, err := d.Dispatch(context.Background(), ActionWake, targetsOf("i-1", "a", "i-2", "b", "i-1", "b"), "snowwhite wake")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if id != "cmd-0001" {
		t.Fatalf("command id = %q, want cmd-0001", id)
	}
	if len(api.sent) != 1 {
		t.Fatalf("SendCommand called %d times, want 1", len(api.sent))
	}

	in := api.sent[0]
	if !reflect.DeepEqual(in.InstanceIds, []string{"i-1", "i-2"}) {
		t.Fatalf("InstanceIds = %v, want [i-1 i-2]", in.InstanceIds)
	}
	if aws.ToString(in.DocumentName) != "worker-docs-Wake-AB12" {
		t.Fatalf("DocumentName = %q", aws.ToString(in.DocumentName))
	}
	if aws.ToString(in.DocumentVersion) != "$LATEST" {
		t.Fatalf("DocumentVersion = %q, want $LATEST", aws.ToString(in.DocumentVersion))
	}
	if aws.ToString(in.Comment) != "snowwhite wake" {
		t.Fatalf("Comment = %q", aws.ToString(in.Comment))
	}
}

func TestDispatchNoTargets(t *testing.T) {
	stacks := &fakeStacks{resources: map[string]string{"QuietWorkersDocument": "doc"}}
	api := newFakeSSM(nil)
	d := newTestDispatcher(stacks, api)

	_, err := d.Dispatch(context.Background(), ActionQuiet, nil, "")
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("Dispatch() error = %v, want ErrNoTargets", err)
	}
	if len(api.sent) != 0 || stacks.calls != 0 {
		t.Fatalf("sent = %d, lookups = %d; want no calls", len(api.sent), stacks.calls)
	}
}

func TestDispatchResolutionFailure(t *testing.T) {
	tests := []struct {
		name   string
		stacks *fakeStacks
		action Action
	}{
		{
			name:   "registry error",
			stacks: &fakeStacks{err: errors.New("AccessDenied")},
			action: ActionQuiet,
		},
		{
			name:   "logical name missing from stack",
			stacks: &fakeStacks{resources: map[string]string{}},
			action: ActionQuiet,
		},
		{
			name:   "empty physical id",
			stacks: &fakeStacks{resources: map[string]string{"StopWorkersDocument": ""}},
			action: ActionStop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeSSM(nil)
			d := newTestDispatcher(tt.stacks, api)

			_, err := d.Dispatch(context.Background(), tt.action, targetsOf("i-1", "a"), "")
			if !errors.Is(err, ErrDocumentResolution) {
				t.Fatalf("Dispatch() error = %v, want ErrDocumentResolution", err)
			}
			if len(api.sent) != 0 {
				t.Fatal("command submitted despite resolution failure")
			}
		})
	}
}

func TestDispatchUnconfiguredAction(t *testing.T) {
	d := NewDispatcher(&fakeStacks{}, newFakeSSM(nil), "worker-docs", map[Action]string{ActionQuiet: "Q"}, discardLogger())

	if _, err := d.Dispatch(context.Background(), ActionStop, targetsOf("i-1", "a"), ""); !errors.Is(err, ErrDocumentResolution) {
		t.Fatalf("Dispatch() error = %v, want ErrDocumentResolution", err)
	}
}

func TestDispatchSubmissionFailure(t *testing.T) {
	stacks := &fakeStacks{resources: map[string]string{"QuietWorkersDocument": "doc"}}
	api := newFakeSSM(nil)
	api.sendErr = errors.New("InvalidInstanceId")
	d := newTestDispatcher(stacks, api)

	_, err := d.Dispatch(context.Background(), ActionQuiet, targetsOf("i-1", "a"), "")
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("Dispatch() error = %v, want ErrSubmission", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("SendCommand called %d times, want exactly 1 (no retry)", len(api.sent))
	}
}

func TestDispatchMissingCommandID(t *testing.T) {
	stacks := &fakeStacks{resources: map[string]string{"QuietWorkersDocument": "doc"}}
	api := newFakeSSM(nil)
	api.commandID = ""
	d := newTestDispatcher(stacks, api)

	if _, err := d.Dispatch(context.Background(), ActionQuiet, targetsOf("i-1", "a"), ""); !errors.Is(err, ErrSubmission) {
		t.Fatalf("Dispatch() error = %v, want ErrSubmission", err)
	}
}

func TestDispatchTruncatesComment(t *testing.T) {
	stacks := &fakeStacks{resources: map[string]string{"QuietWorkersDocument": "doc"}}
	api := newFakeSSM(nil)
	d := newTestDispatcher(stacks, api)

	if _, err := d.Dispatch(context.Background(), ActionQuiet, targetsOf("i-1", "a"), strings.Repeat("x", 150)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := len(aws.ToString(api.sent[0].Comment)); got != 100 {
		t.Fatalf("comment length = %d, want 100", got)
	}
}
