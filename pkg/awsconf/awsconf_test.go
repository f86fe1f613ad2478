package awsconf

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func TestLoadRequiresRegion(t *testing.T) {
	if _, err := Load(context.Background(), Options{Region: "  "}); err == nil {
		t.Fatal("expected error for blank region")
	}
}

func TestLoadAppliesRegionAndEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := Load(context.Background(), Options{
		Region:   "eu-west-1",
		Endpoint: "http://localhost:4566",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("Region = %q, want eu-west-1", cfg.Region)
	}
	if got := aws.ToString(cfg.BaseEndpoint); got != "http://localhost:4566" {
		t.Fatalf("BaseEndpoint = %q, want http://localhost:4566", got)
	}
}
