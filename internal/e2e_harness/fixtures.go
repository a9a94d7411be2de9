package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// SeedHistory creates the generation history table and inserts rows
// whose created_at lies the given duration in the past.
func SeedHistory(ctx context.Context, db *sql.DB, table string, rows int, age time.Duration) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		ruleset_id TEXT NOT NULL,
		document   JSONB NOT NULL,
		warnings   JSONB,
		created_at BIGINT NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}

	createdAt := time.Now().Add(-age).Unix()
	for i := 0; i < rows; i++ {
		doc := fmt.Sprintf(`{"metadata":{"name":"bp_%d"}}`, i)
		insert := fmt.Sprintf(
			`INSERT INTO %s (id, ruleset_id, document, warnings, created_at) VALUES ($1, $2, $3, NULL, $4)`,
			table)
		if _, err := db.ExecContext(ctx, insert, uuid.New().String(), "e2e-ruleset", doc, createdAt); err != nil {
			return fmt.Errorf("insert history row %d: %w", i, err)
		}
	}
	return nil
}

// CountHistory returns the number of rows left in the history table.
func CountHistory(ctx context.Context, db *sql.DB, table string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&count)
	return count, err
}

// NewS3Client builds a path-style client against a local endpoint.
func NewS3Client(ctx context.Context, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// EnsureBucket creates the bucket, tolerating it already existing.
func EnsureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if _, headErr := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); headErr == nil {
			return nil
		}
	}
	return err
}

// ListKeys lists object keys under a prefix.
func ListKeys(ctx context.Context, client *s3.Client, bucket, prefix string) ([]string, error) {
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}
