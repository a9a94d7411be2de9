package e2e_harness

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mahino/scalar/internal/archiver"
)

func TestArchiverEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}

	if _, err := h.StartPostgres(ctx); err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer h.StopPostgres(ctx)

	endpoint, err := h.StartS3(ctx)
	if err != nil {
		t.Fatalf("start object store: %v", err)
	}
	defer h.StopS3(ctx)

	const (
		table  = "generation_history"
		bucket = "scalar-archive"
	)

	// Rows two days old against a one day retention window.
	if err := SeedHistory(ctx, h.PGDB, table, 7, 48*time.Hour); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	client, err := NewS3Client(ctx, endpoint, "minio", "minio")
	if err != nil {
		t.Fatalf("build s3 client: %v", err)
	}
	if err := EnsureBucket(ctx, client, bucket); err != nil {
		t.Fatalf("ensure bucket: %v", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "minio")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "minio")
	t.Setenv("AWS_ENDPOINT_URL_S3", endpoint)
	t.Setenv("AWS_REGION", "us-east-1")

	cfg := archiver.Config{
		PGHost:       h.PGHost,
		PGPort:       h.PGPort,
		PGUser:       "postgres",
		PGPassword:   "password",
		PGDB:         "postgres",
		PGSSLMode:    "disable",
		HistoryTable: table,
		S3Bucket:     bucket,
		S3Prefix:     "e2e",
		S3Region:     "us-east-1",
		BatchSize:    5,
		RetainFor:    24 * time.Hour,
	}
	if err := archiver.RunOnce(ctx, cfg, false, zap.NewNop()); err != nil {
		t.Fatalf("archive pass: %v", err)
	}

	left, err := CountHistory(ctx, h.PGDB, table)
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected all rows archived, %d left", left)
	}

	keys, err := ListKeys(ctx, client, bucket, "e2e/")
	if err != nil {
		t.Fatalf("list archived keys: %v", err)
	}
	// 7 rows in batches of 5 means two objects.
	if len(keys) != 2 {
		t.Fatalf("expected 2 archived objects, got %d: %v", len(keys), keys)
	}
}
