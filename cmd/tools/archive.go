package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mahino/scalar/internal/archiver"
)

func runArchive(args []string) error {
	flags := flag.NewFlagSet("archive", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: scalar-tools archive [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	cfg := archiver.Config{}
	var retainHours int
	var dryRun bool
	flags.StringVar(&cfg.PGHost, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&cfg.PGPort, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&cfg.PGDB, "db-name", getenvDefault("DB_NAME", "scalar"), "database name")
	flags.StringVar(&cfg.PGUser, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&cfg.PGPassword, "db-password", getenvDefault("DB_PASSWORD", ""), "database password")
	flags.StringVar(&cfg.PGSSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "require"), "database sslmode")
	flags.BoolVar(&cfg.PGUseIAM, "db-iam", getenvDefault("DB_USE_IAM", "") == "true", "use an IAM auth token as the database password")
	flags.StringVar(&cfg.HistoryTable, "history-table", getenvDefault("HISTORY_TABLE", "generation_history"), "generation history table name")
	flags.StringVar(&cfg.S3Bucket, "bucket", getenvDefault("ARCHIVE_BUCKET", ""), "S3 bucket for archived batches")
	flags.StringVar(&cfg.S3Prefix, "prefix", getenvDefault("ARCHIVE_PREFIX", "scalar"), "S3 key prefix")
	flags.StringVar(&cfg.S3Region, "region", getenvDefault("AWS_REGION", ""), "AWS region override")
	flags.IntVar(&cfg.BatchSize, "batch-size", getenvDefaultInt("ARCHIVE_BATCH_SIZE", 500), "rows per archived batch")
	flags.IntVar(&retainHours, "retain-hours", getenvDefaultInt("ARCHIVE_RETAIN_HOURS", 720), "rows younger than this stay in Postgres")
	flags.BoolVar(&dryRun, "dry-run", false, "upload batches but keep the rows in Postgres")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if cfg.S3Bucket == "" {
		return fmt.Errorf("archive bucket is required (-bucket or ARCHIVE_BUCKET)")
	}
	cfg.RetainFor = time.Duration(retainHours) * time.Hour

	return archiver.RunOnce(context.Background(), cfg, dryRun, zap.L())
}
