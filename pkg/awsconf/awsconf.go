// Package awsconf builds aws.Config values shared by the service clients.
package awsconf

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// Options controls how an aws.Config is loaded.
type Options struct {
	// Region is required.
	Region string
	// Endpoint overrides the base endpoint of every client built from the
	// config (e.g. a LocalStack URL). Empty means the AWS default.
	Endpoint string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Load resolves credentials through the default chain and applies opts.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		return aws.Config{}, errors.New("awsconf: region is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(endpoint))
	}

	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}
