package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"snowwhite/services/snowwhite"
	"snowwhite/services/snowwhite/internal/config"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"submission", fmt.Errorf("%w: throttled", snowwhite.ErrSubmission), 2},
		{"document resolution", fmt.Errorf("%w: missing", snowwhite.ErrDocumentResolution), 1},
		{"configuration", fmt.Errorf("%w: EB_APP_NAME", config.ErrMissing), 1},
		{"cancelled", context.Canceled, 1},
		{"other", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRootCommandReportsMissingConfig(t *testing.T) {
	for _, key := range []string{
		"WORKER_ACTION", "EB_APP_NAME", "AWS_REGION",
		"QUIET_COMMAND_DOC_NAME", "WAKE_COMMAND_DOC_NAME", "STOP_COMMAND_DOC_NAME",
		"DOCUMENT_STACK_NAME", "SLACK_WEBHOOK", "NOTIFY_SLACK_CHANNEL",
	} {
		t.Setenv(key, "")
	}

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--action", "quiet"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	if !errors.Is(err, config.ErrMissing) {
		t.Fatalf("Execute() error = %v, want ErrMissing", err)
	}
	if strings.Contains(err.Error(), "WORKER_ACTION") {
		t.Fatalf("--action not applied: %v", err)
	}
	if exitCode(err) != 1 {
		t.Fatalf("exitCode = %d, want 1", exitCode(err))
	}
}

func TestHistoryRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"history"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("history without a database succeeded")
	}
}

func TestPrintHistory(t *testing.T) {
	id := uuid.MustParse("7d1b5f0e-3a4c-4b9e-9a55-1f2e3d4c5b6a")
	var buf bytes.Buffer
	err := printHistory(&buf, []snowwhite.RunRecord{{
		ID:          id,
		Action:      "quiet",
		Application: "shop",
		Region:      "eu-west-1",
		Targets:     3,
		Succeeded:   2,
		Failed:      1,
		Rounds:      4,
		StartedAt:   time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("printHistory() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header and one run:\n%s", len(lines), buf.String())
	}
	fields := strings.Fields(lines[1])
	want := []string{"2024-03-10T07:30:00Z", "quiet", "shop", "eu-west-1", "-", "3", "2", "1", "0", "4", id.String()}
	if strings.Join(fields, " ") != strings.Join(want, " ") {
		t.Fatalf("row = %v, want %v", fields, want)
	}
}
