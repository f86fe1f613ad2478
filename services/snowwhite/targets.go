package snowwhite

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
)

// TargetEnumerator lists the instances of the Elastic Beanstalk environments
// whose names contain a pattern.
type TargetEnumerator struct {
	envs   EnvironmentDescriber
	logger *log.Logger
}

func NewTargetEnumerator(envs EnvironmentDescriber, logger *log.Logger) *TargetEnumerator {
	return &TargetEnumerator{envs: envs, logger: logger}
}

type environment struct {
	id   string
	name string
}

// Enumerate returns the instances of app's live environments whose name
// contains pattern, case-insensitively. Instances are ordered by environment
// then id and each id appears once.
func (e *TargetEnumerator) Enumerate(ctx context.Context, app, pattern string) ([]InstanceTarget, error) {
	envs, err := e.matchingEnvironments(ctx, app, strings.ToLower(pattern))
	if err != nil {
		return nil, err
	}

	var targets []InstanceTarget
	seen := make(map[string]struct{})
	for _, env := range envs {
		out, err := e.envs.DescribeEnvironmentResources(ctx, &elasticbeanstalk.DescribeEnvironmentResourcesInput{
			EnvironmentId: aws.String(env.id),
		})
		if err != nil {
			e.logger.Printf("WARN describe resources of %s (%s): %v", env.name, env.id, err)
			continue
		}
		if out.EnvironmentResources == nil {
			continue
		}

		name := aws.ToString(out.EnvironmentResources.EnvironmentName)
		if name == "" {
			name = env.name
		}
		ids := make([]string, 0, len(out.EnvironmentResources.Instances))
		for _, inst := range out.EnvironmentResources.Instances {
			if id := aws.ToString(inst.Id); id != "" {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, InstanceTarget{InstanceID: id, Environment: name})
		}
		e.logger.Printf("INFO environment %s has %d instances", name, len(ids))
	}

	return targets, nil
}

func (e *TargetEnumerator) matchingEnvironments(ctx context.Context, app, pattern string) ([]environment, error) {
	var (
		envs  []environment
		token *string
	)
	for {
		out, err := e.envs.DescribeEnvironments(ctx, &elasticbeanstalk.DescribeEnvironmentsInput{
			ApplicationName: aws.String(app),
			IncludeDeleted:  aws.Bool(false),
			NextToken:       token,
		})
		if err != nil {
			return nil, fmt.Errorf("describe environments of %s: %w", app, err)
		}

		for _, env := range out.Environments {
			name := aws.ToString(env.EnvironmentName)
			if strings.Contains(strings.ToLower(name), pattern) {
				envs = append(envs, environment{id: aws.ToString(env.EnvironmentId), name: name})
			}
		}

		if aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}

	sort.Slice(envs, func(i, j int) bool {
		return strings.ToLower(envs[i].name) < strings.ToLower(envs[j].name)
	})
	return envs, nil
}
