package snowwhite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	gos3 "snowwhite/pkg/s3"
)

const reportContentType = "application/zstd"

// ReportArchiver stores each run report, zstd-compressed JSON, in S3.
type ReportArchiver struct {
	client *gos3.Client
	bucket string
}

func NewReportArchiver(client *gos3.Client, bucket string) *ReportArchiver {
	return &ReportArchiver{client: client, bucket: bucket}
}

func (a *ReportArchiver) Name() string { return "s3" }

func (a *ReportArchiver) Record(ctx context.Context, report Report) error {
	data, err := encodeReport(report)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	key := reportKey(report)
	if err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), reportContentType, hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func reportKey(report Report) string {
	return fmt.Sprintf("runs/%s/%s/%s.json.zst",
		report.Application,
		report.StartedAt.UTC().Format("2006/01/02"),
		report.RunID)
}

func encodeReport(report Report) ([]byte, error) {
	raw, err := json.Marshal(summarize(report))
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return nil, fmt.Errorf("compress report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("compress report: %w", err)
	}
	return buf.Bytes(), nil
}
