// Package archiver moves aged generation-history rows out of Postgres
// into S3. The HTTP server keeps only a short FIFO of responses per rule
// set; everything older is shipped as JSON batches and deleted.
package archiver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// advisoryLockKey serializes archiver passes across replicas.
const advisoryLockKey = int64(0x5ca1a5)

// Config carries everything one archiver pass needs.
type Config struct {
	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDB       string
	PGSSLMode  string
	PGUseIAM   bool

	HistoryTable string

	S3Bucket  string
	S3Prefix  string
	S3Region  string
	BatchSize int
	RetainFor time.Duration
}

type archivedRow struct {
	ID        string          `json:"id"`
	RuleSetID string          `json:"ruleset_id"`
	Document  json.RawMessage `json:"document"`
	Warnings  json.RawMessage `json:"warnings,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

// RunOnce performs one archive pass: rows older than the retention
// window are uploaded in batches and removed. With dryRun the upload
// happens but nothing is deleted.
func RunOnce(ctx context.Context, cfg Config, dryRun bool, logger *zap.Logger) error {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	if cfg.S3Region != "" {
		awsCfg.Region = cfg.S3Region
	}
	if envKey := os.Getenv("AWS_ACCESS_KEY_ID"); envKey != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"), "")
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO and friends) need path-style addressing.
		if os.Getenv("AWS_ENDPOINT_URL_S3") != "" || os.Getenv("AWS_ENDPOINT_URL") != "" {
			o.UsePathStyle = true
		}
	})

	pgPassword := cfg.PGPassword
	if cfg.PGUseIAM {
		endpoint := fmt.Sprintf("%s:%d", cfg.PGHost, cfg.PGPort)
		if token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials); err == nil && token != "" {
			pgPassword = token
			logger.Sugar().Infow("generated IAM auth token for Postgres connection (dsql)")
		} else {
			logger.Sugar().Warnw("failed to generate IAM auth token; falling back to configured password", "err", err)
		}
	}

	sslMode := cfg.PGSSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGHost, cfg.PGPort, cfg.PGUser, pgPassword, cfg.PGDB, sslMode)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("open pg: %w", err)
	}
	defer db.Close()

	locked, err := acquireLock(ctx, db)
	if err != nil {
		return fmt.Errorf("acquire archive lock: %w", err)
	}
	if !locked {
		logger.Sugar().Infow("archive lock held elsewhere, skipping pass")
		return nil
	}
	defer releaseLock(ctx, db)

	cutoff := time.Now().Add(-cfg.RetainFor).Unix()
	for {
		rows, err := selectBatch(ctx, db, cfg.HistoryTable, cutoff, cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			logger.Sugar().Infow("no rows left to archive")
			return nil
		}

		key := buildArchiveKey(cfg.S3Prefix)
		if err := uploadBatch(ctx, s3Client, cfg.S3Bucket, key, rows); err != nil {
			return err
		}
		logger.Sugar().Infow("archived history batch",
			"rows", len(rows), "bucket", cfg.S3Bucket, "key", key)

		if dryRun {
			logger.Sugar().Infow("dry-run: skipping delete of archived rows")
			return nil
		}
		if err := deleteRows(ctx, db, cfg.HistoryTable, rows); err != nil {
			return err
		}
		if len(rows) < cfg.BatchSize {
			return nil
		}
	}
}

func acquireLock(ctx context.Context, db *sql.DB) (bool, error) {
	var locked bool
	err := db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked)
	return locked, err
}

func releaseLock(ctx context.Context, db *sql.DB) {
	_, _ = db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockKey)
}

func selectBatch(ctx context.Context, db *sql.DB, table string, cutoff int64, limit int) ([]archivedRow, error) {
	query := fmt.Sprintf(
		`SELECT id, ruleset_id, document, warnings, created_at FROM %s
			WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		quoteIdentifier(table))
	rows, err := db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select archive batch: %w", err)
	}
	defer rows.Close()

	var batch []archivedRow
	for rows.Next() {
		var row archivedRow
		var warnings sql.NullString
		if err := rows.Scan(&row.ID, &row.RuleSetID, &row.Document, &warnings, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if warnings.Valid {
			row.Warnings = json.RawMessage(warnings.String)
		}
		batch = append(batch, row)
	}
	return batch, rows.Err()
}

func buildArchiveKey(prefix string) string {
	return strings.TrimSuffix(prefix, "/") +
		fmt.Sprintf("/archive/%s/%s.json",
			time.Now().UTC().Format("2006-01-02"),
			uuid.Must(uuid.NewV7()).String())
}

func uploadBatch(ctx context.Context, client *s3.Client, bucket, key string, rows []archivedRow) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode archive batch: %w", err)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload archive batch: %w", err)
	}
	return nil
}

func deleteRows(ctx context.Context, db *sql.DB, table string, rows []archivedRow) error {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)",
		quoteIdentifier(table), strings.Join(placeholders, ", "))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete archived rows: %w", err)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
