package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type initDBOptions struct {
	host         string
	port         int
	database     string
	user         string
	password     string
	sslMode      string
	ruleSetTable string
	historyTable string
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: scalar-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{}
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "scalar"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.ruleSetTable, "ruleset-table", getenvDefault("RULESET_TABLE", "rule_sets"), "rule set table name")
	flags.StringVar(&opts.historyTable, "history-table", getenvDefault("HISTORY_TABLE", "generation_history"), "generation history table name")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()

	connString := buildConnString(opts)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, opts)
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func buildConnString(opts initDBOptions) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func ensureTables(ctx context.Context, tx pgx.Tx, opts initDBOptions) error {
	ruleSets := quoteIdentifier(opts.ruleSetTable)
	revisions := quoteIdentifier(opts.ruleSetTable + "_revisions")
	history := quoteIdentifier(opts.historyTable)

	ddlRuleSets := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		document   JSONB NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, ruleSets)

	if _, err := tx.Exec(ctx, ddlRuleSets); err != nil {
		return fmt.Errorf("ensure rule set table: %w", err)
	}
	fmt.Printf("Created rule set table: %s\n", opts.ruleSetTable)

	ddlRevisions := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		revision_id BIGSERIAL PRIMARY KEY,
		ruleset_id  TEXT NOT NULL,
		document    JSONB NOT NULL,
		archived_at BIGINT NOT NULL
	)`, revisions)

	if _, err := tx.Exec(ctx, ddlRevisions); err != nil {
		return fmt.Errorf("ensure rule set revision table: %w", err)
	}
	fmt.Printf("Created rule set revision table: %s_revisions\n", opts.ruleSetTable)

	ddlHistory := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		ruleset_id TEXT NOT NULL,
		document   JSONB NOT NULL,
		warnings   JSONB,
		created_at BIGINT NOT NULL
	)`, history)

	if _, err := tx.Exec(ctx, ddlHistory); err != nil {
		return fmt.Errorf("ensure generation history table: %w", err)
	}
	fmt.Printf("Created generation history table: %s\n", opts.historyTable)

	idxRevisions := quoteIdentifier(makeIndexName(opts.ruleSetTable+"_revisions", "ruleset"))
	createIdxRevisions := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (ruleset_id, archived_at DESC)`, idxRevisions, revisions)
	if _, err := tx.Exec(ctx, createIdxRevisions); err != nil {
		return fmt.Errorf("create revision index: %w", err)
	}

	idxHistory := quoteIdentifier(makeIndexName(opts.historyTable, "ruleset"))
	createIdxHistory := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (ruleset_id, created_at DESC)`, idxHistory, history)
	if _, err := tx.Exec(ctx, createIdxHistory); err != nil {
		return fmt.Errorf("create history index: %w", err)
	}

	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func makeIndexName(table string, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return fmt.Sprintf("%s_%s_idx", base, suffix)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
