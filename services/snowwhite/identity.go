package snowwhite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

const (
	legacyMetadataURL = "http://169.254.170.2/v2/metadata"
	slackUserTag      = "slack_userid"
)

// MetadataURL returns the ECS task metadata endpoint of the running task.
func MetadataURL() string {
	if v := strings.TrimSpace(os.Getenv("ECS_CONTAINER_METADATA_URI_V4")); v != "" {
		return strings.TrimRight(v, "/") + "/task"
	}
	return legacyMetadataURL
}

type taskMetadata struct {
	Cluster string `json:"Cluster"`
	TaskARN string `json:"TaskARN"`
}

// IdentityResolver finds who started the ECS task this process runs in and
// the Slack id tagged on their IAM user. Every failure degrades to an empty
// Actor field.
type IdentityResolver struct {
	client      *http.Client
	metadataURL string
	tasks       TaskDescriber
	users       UserTagLister
	logger      *log.Logger
}

func NewIdentityResolver(client *http.Client, metadataURL string, tasks TaskDescriber, users UserTagLister, logger *log.Logger) *IdentityResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &IdentityResolver{
		client:      client,
		metadataURL: metadataURL,
		tasks:       tasks,
		users:       users,
		logger:      logger,
	}
}

func (r *IdentityResolver) Resolve(ctx context.Context) Actor {
	meta, err := r.taskMetadata(ctx)
	if err != nil {
		r.logger.Printf("WARN task metadata unavailable: %v", err)
		return Actor{}
	}
	if meta.Cluster == "" || meta.TaskARN == "" {
		r.logger.Printf("WARN task metadata has no cluster or task arn")
		return Actor{}
	}

	r.logger.Printf("INFO describing task %s in cluster %s", meta.TaskARN, meta.Cluster)
	out, err := r.tasks.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(meta.Cluster),
		Tasks:   []string{meta.TaskARN},
	})
	if err != nil {
		r.logger.Printf("WARN describe task %s: %v", meta.TaskARN, err)
		return Actor{}
	}
	if len(out.Tasks) == 0 {
		return Actor{}
	}

	startedBy := strings.TrimSpace(aws.ToString(out.Tasks[0].StartedBy))
	if startedBy == "" || strings.EqualFold(startedBy, "unknown") {
		return Actor{}
	}

	actor := Actor{User: startedBy}
	actor.SlackID = r.slackID(ctx, startedBy)
	return actor
}

func (r *IdentityResolver) slackID(ctx context.Context, user string) string {
	out, err := r.users.ListUserTags(ctx, &iam.ListUserTagsInput{UserName: aws.String(user)})
	if err != nil {
		r.logger.Printf("WARN list tags for IAM user %s: %v", user, err)
		return ""
	}
	for _, tag := range out.Tags {
		if aws.ToString(tag.Key) == slackUserTag {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func (r *IdentityResolver) taskMetadata(ctx context.Context) (taskMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.metadataURL, nil)
	if err != nil {
		return taskMetadata{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return taskMetadata{}, fmt.Errorf("get %s: %w", r.metadataURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return taskMetadata{}, fmt.Errorf("metadata unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var meta taskMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return taskMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}
