package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

type ruleStorePool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore persists rule sets and generation history in Postgres,
// with revision history trimmed to the configured FIFO limits.
type PostgresStore struct {
	pool          ruleStorePool
	ruleTable     string
	historyTable  string
	ruleLimit     int
	responseLimit int
	nowFunc       func() time.Time
	logger        *zap.SugaredLogger
}

// NewPostgresStore creates a store over an existing pool. Table names
// come from configuration and are sanitized before interpolation.
func NewPostgresStore(pool ruleStorePool, dbCfg scalar.DatabaseConfig, storageCfg scalar.StorageConfig, logger *zap.SugaredLogger) *PostgresStore {
	if logger == nil {
		logger = zap.S()
	}
	return &PostgresStore{
		pool:          pool,
		ruleTable:     dbCfg.RuleSetTable,
		historyTable:  dbCfg.HistoryTable,
		ruleLimit:     storageCfg.RuleHistoryLimit,
		responseLimit: storageCfg.ResponseLimit,
		nowFunc:       time.Now,
		logger:        logger,
	}
}

func sanitizeIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (s *PostgresStore) revisionTable() string {
	return s.ruleTable + "_revisions"
}

// Load returns the current revision of a stored rule set.
func (s *PostgresStore) Load(ctx context.Context, id string) (*scalar.RuleSetDocument, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE id = $1`, sanitizeIdentifier(s.ruleTable))
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scalar.NewRuleSetNotFoundError(id)
		}
		return nil, scalar.NewStoreError("failed to load rule set", err)
	}
	return decodeRuleSetDocument(raw)
}

// Save upserts a rule set, pushing any previous revision into the
// revision table and trimming revisions beyond the limit.
func (s *PostgresStore) Save(ctx context.Context, doc *scalar.RuleSetDocument) error {
	if doc == nil || doc.ID == "" {
		return scalar.NewStoreError("rule set document needs an id", nil)
	}
	now := s.nowFunc().Unix()
	stored := *doc
	stored.UpdatedAt = now
	if stored.CreatedAt == 0 {
		stored.CreatedAt = now
	}
	raw, err := json.Marshal(&stored)
	if err != nil {
		return scalar.NewStoreError("failed to encode rule set", err)
	}
	if err := scalar.ValidateRuleSetDocument(raw); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return scalar.NewStoreError("begin transaction", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	archive := fmt.Sprintf(
		`INSERT INTO %s (ruleset_id, document, archived_at)
			SELECT id, document, $2 FROM %s WHERE id = $1`,
		sanitizeIdentifier(s.revisionTable()), sanitizeIdentifier(s.ruleTable))
	if _, err := tx.Exec(ctx, archive, doc.ID, now); err != nil {
		return scalar.NewStoreError("archive rule set revision", err)
	}

	trim := fmt.Sprintf(
		`DELETE FROM %s WHERE ruleset_id = $1 AND revision_id NOT IN (
			SELECT revision_id FROM %s WHERE ruleset_id = $1
			ORDER BY archived_at DESC, revision_id DESC LIMIT $2)`,
		sanitizeIdentifier(s.revisionTable()), sanitizeIdentifier(s.revisionTable()))
	if _, err := tx.Exec(ctx, trim, doc.ID, s.ruleLimit); err != nil {
		return scalar.NewStoreError("trim rule set revisions", err)
	}

	upsert := fmt.Sprintf(
		`INSERT INTO %s (id, document, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id)
			DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		sanitizeIdentifier(s.ruleTable))
	if _, err := tx.Exec(ctx, upsert, doc.ID, raw, stored.CreatedAt, stored.UpdatedAt); err != nil {
		return scalar.NewStoreError("upsert rule set", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return scalar.NewStoreError("commit rule set", err)
	}
	return nil
}

// Delete removes a rule set and its revisions.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return scalar.NewStoreError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	revisions := fmt.Sprintf(`DELETE FROM %s WHERE ruleset_id = $1`, sanitizeIdentifier(s.revisionTable()))
	if _, err := tx.Exec(ctx, revisions, id); err != nil {
		return scalar.NewStoreError("delete rule set revisions", err)
	}

	current := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, sanitizeIdentifier(s.ruleTable))
	tag, err := tx.Exec(ctx, current, id)
	if err != nil {
		return scalar.NewStoreError("delete rule set", err)
	}
	if tag.RowsAffected() == 0 {
		return scalar.NewRuleSetNotFoundError(id)
	}
	return tx.Commit(ctx)
}

// List returns stored rule set ids, sorted.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, sanitizeIdentifier(s.ruleTable))
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, scalar.NewStoreError("failed to list rule sets", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, scalar.NewStoreError("failed to scan rule set id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, scalar.NewStoreError("error iterating rule set ids", err)
	}
	return ids, nil
}

// RuleHistory returns archived revisions of a rule set, newest first.
func (s *PostgresStore) RuleHistory(ctx context.Context, id string) ([]*scalar.RuleSetDocument, error) {
	query := fmt.Sprintf(
		`SELECT document FROM %s WHERE ruleset_id = $1 ORDER BY archived_at DESC, revision_id DESC`,
		sanitizeIdentifier(s.revisionTable()))
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, scalar.NewStoreError("failed to load rule set history", err)
	}
	defer rows.Close()

	var docs []*scalar.RuleSetDocument
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, scalar.NewStoreError("failed to scan rule set revision", err)
		}
		doc, err := decodeRuleSetDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, scalar.NewStoreError("error iterating rule set revisions", err)
	}
	return docs, nil
}

// Record stores one generated response and trims the response FIFO.
func (s *PostgresStore) Record(ctx context.Context, record *scalar.GenerationRecord) error {
	if record == nil {
		return scalar.NewStoreError("generation record is nil", nil)
	}
	docRaw, err := json.Marshal(record.Document)
	if err != nil {
		return scalar.NewStoreError("failed to encode generated document", err)
	}
	warnRaw, err := json.Marshal(record.Warnings)
	if err != nil {
		return scalar.NewStoreError("failed to encode warnings", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return scalar.NewStoreError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	insert := fmt.Sprintf(
		`INSERT INTO %s (id, ruleset_id, document, warnings, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
		sanitizeIdentifier(s.historyTable))
	if _, err := tx.Exec(ctx, insert, record.ID, record.RuleSetID, docRaw, warnRaw, record.CreatedAt); err != nil {
		return scalar.NewStoreError("insert generation record", err)
	}

	trim := fmt.Sprintf(
		`DELETE FROM %s WHERE ruleset_id = $1 AND id NOT IN (
			SELECT id FROM %s WHERE ruleset_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2)`,
		sanitizeIdentifier(s.historyTable), sanitizeIdentifier(s.historyTable))
	if _, err := tx.Exec(ctx, trim, record.RuleSetID, s.responseLimit); err != nil {
		return scalar.NewStoreError("trim generation history", err)
	}
	return tx.Commit(ctx)
}

// Responses returns recorded responses for a rule set, newest first.
func (s *PostgresStore) Responses(ctx context.Context, ruleSetID string) ([]*scalar.GenerationRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, ruleset_id, document, warnings, created_at
			FROM %s WHERE ruleset_id = $1 ORDER BY created_at DESC, id DESC`,
		sanitizeIdentifier(s.historyTable))
	rows, err := s.pool.Query(ctx, query, ruleSetID)
	if err != nil {
		return nil, scalar.NewStoreError("failed to load generation history", err)
	}
	defer rows.Close()

	var records []*scalar.GenerationRecord
	for rows.Next() {
		var (
			record  scalar.GenerationRecord
			docRaw  []byte
			warnRaw []byte
		)
		if err := rows.Scan(&record.ID, &record.RuleSetID, &docRaw, &warnRaw, &record.CreatedAt); err != nil {
			return nil, scalar.NewStoreError("failed to scan generation record", err)
		}
		if err := json.Unmarshal(docRaw, &record.Document); err != nil {
			return nil, scalar.NewStoreError("failed to decode generated document", err)
		}
		if len(warnRaw) > 0 {
			if err := json.Unmarshal(warnRaw, &record.Warnings); err != nil {
				return nil, scalar.NewStoreError("failed to decode warnings", err)
			}
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, scalar.NewStoreError("error iterating generation records", err)
	}
	return records, nil
}

func decodeRuleSetDocument(raw []byte) (*scalar.RuleSetDocument, error) {
	if err := scalar.ValidateRuleSetDocument(raw); err != nil {
		return nil, err
	}
	var doc scalar.RuleSetDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, scalar.NewStoreError("failed to decode rule set", err)
	}
	return &doc, nil
}
