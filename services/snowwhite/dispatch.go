package snowwhite

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const (
	latestDocumentVersion = "$LATEST"
	maxCommentLength      = 100
)

// Dispatcher resolves an action to its SSM document and submits one command
// covering every target instance.
type Dispatcher struct {
	stacks    StackResourceDescriber
	commands  CommandSender
	stackName string
	documents map[Action]string
	logger    *log.Logger
}

// NewDispatcher returns a Dispatcher resolving the logical document names in
// documents against the resources of stackName.
func NewDispatcher(stacks StackResourceDescriber, commands CommandSender, stackName string, documents map[Action]string, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		stacks:    stacks,
		commands:  commands,
		stackName: stackName,
		documents: documents,
		logger:    logger,
	}
}

// ResolveDocument maps action to the physical SSM document name.
func (d *Dispatcher) ResolveDocument(ctx context.Context, action Action) (string, error) {
	logical := d.documents[action]
	if logical == "" {
		return "", fmt.Errorf("%w: no document configured for action %q", ErrDocumentResolution, action)
	}

	out, err := d.stacks.DescribeStackResource(ctx, &cloudformation.DescribeStackResourceInput{
		StackName:         aws.String(d.stackName),
		LogicalResourceId: aws.String(logical),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s in stack %s: %v", ErrDocumentResolution, logical, d.stackName, err)
	}
	if out == nil || out.StackResourceDetail == nil {
		return "", fmt.Errorf("%w: %s not found in stack %s", ErrDocumentResolution, logical, d.stackName)
	}
	physical := aws.ToString(out.StackResourceDetail.PhysicalResourceId)
	if physical == "" {
		return "", fmt.Errorf("%w: %s in stack %s has no physical id", ErrDocumentResolution, logical, d.stackName)
	}
	return physical, nil
}

// Dispatch submits the action's document to every target and returns the
// command id. Nothing is submitted for an empty target set.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, targets []InstanceTarget, comment string) (string, error) {
	if len(targets) == 0 {
		return "", ErrNoTargets
	}

	document, err := d.ResolveDocument(ctx, action)
	if err != nil {
		return "", err
	}

	req := newCommandRequest(document, targets)
	d.logger.Printf("INFO submitting %s to %d instances: %s", req.DocumentName, len(req.InstanceIDs), strings.Join(req.InstanceIDs, ", "))

	input := &ssm.SendCommandInput{
		DocumentName:    aws.String(req.DocumentName),
		DocumentVersion: aws.String(latestDocumentVersion),
		InstanceIds:     req.InstanceIDs,
	}
	if comment != "" {
		if len(comment) > maxCommentLength {
			comment = comment[:maxCommentLength]
		}
		input.Comment = aws.String(comment)
	}

	out, err := d.commands.SendCommand(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	if out == nil || out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return "", fmt.Errorf("%w: no command id returned", ErrSubmission)
	}
	return aws.ToString(out.Command.CommandId), nil
}

func newCommandRequest(document string, targets []InstanceTarget) CommandRequest {
	ids := make([]string, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.InstanceID]; ok {
			continue
		}
		seen[t.InstanceID] = struct{}{}
		ids = append(ids, t.InstanceID)
	}
	return CommandRequest{DocumentName: document, InstanceIDs: ids}
}
