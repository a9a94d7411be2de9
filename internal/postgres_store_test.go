package internal

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahino/scalar"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	mock.MatchExpectationsInOrder(true)

	store := NewPostgresStore(mock,
		scalar.DatabaseConfig{RuleSetTable: "rule_sets", HistoryTable: "generation_history"},
		scalar.StorageConfig{RuleHistoryLimit: 10, ResponseLimit: 5},
		nil)
	return store, mock
}

func TestPostgresLoadWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	doc := ruleSetDoc("blueprints/web", "blueprint")
	doc.CreatedAt = 100
	doc.UpdatedAt = 200
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	mock.ExpectQuery(`^SELECT document FROM "rule_sets" WHERE id = \$1$`).
		WithArgs("blueprints/web").
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(raw))

	loaded, err := store.Load(context.Background(), "blueprints/web")
	require.NoError(t, err)
	assert.Equal(t, "blueprints/web", loaded.ID)
	assert.Equal(t, "blueprint", loaded.APIType)
	require.Len(t, loaded.Rules.Defaults, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadNotFoundWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`^SELECT document FROM "rule_sets" WHERE id = \$1$`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"document"}))

	_, err := store.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, scalar.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	store.nowFunc = func() time.Time { return fixed }

	doc := ruleSetDoc("blueprints/web", "blueprint")

	stored := *doc
	stored.CreatedAt = fixed.Unix()
	stored.UpdatedAt = fixed.Unix()
	raw, err := json.Marshal(&stored)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`^INSERT INTO "rule_sets_revisions"`).
		WithArgs("blueprints/web", fixed.Unix()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`^DELETE FROM "rule_sets_revisions"`).
		WithArgs("blueprints/web", 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`^INSERT INTO "rule_sets"`).
		WithArgs("blueprints/web", raw, fixed.Unix(), fixed.Unix()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.Save(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM "rule_sets_revisions" WHERE ruleset_id = \$1$`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`^DELETE FROM "rule_sets" WHERE id = \$1$`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.Delete(context.Background(), "gone"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteNotFoundWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM "rule_sets_revisions" WHERE ruleset_id = \$1$`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`^DELETE FROM "rule_sets" WHERE id = \$1$`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := store.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, scalar.IsNotFoundError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`^SELECT id FROM "rule_sets" ORDER BY id$`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRuleHistoryWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	older := ruleSetDoc("caps", "rev-1")
	newer := ruleSetDoc("caps", "rev-2")
	olderRaw, err := json.Marshal(older)
	require.NoError(t, err)
	newerRaw, err := json.Marshal(newer)
	require.NoError(t, err)

	query := `SELECT document FROM "rule_sets_revisions" WHERE ruleset_id = $1 ORDER BY archived_at DESC, revision_id DESC`
	mock.ExpectQuery("^" + regexp.QuoteMeta(query) + "$").
		WithArgs("caps").
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(newerRaw).AddRow(olderRaw))

	docs, err := store.RuleHistory(context.Background(), "caps")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "rev-2", docs[0].APIType)
	assert.Equal(t, "rev-1", docs[1].APIType)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	record := &scalar.GenerationRecord{
		ID:        "run-1",
		RuleSetID: "blueprints/web",
		Document:  scalar.Document{"vms": []any{}},
		Warnings:  []scalar.Warning{{Type: scalar.WarningDegenerateScale, Path: "vms", Message: "empty array"}},
		CreatedAt: 1700000000,
	}
	docRaw, err := json.Marshal(record.Document)
	require.NoError(t, err)
	warnRaw, err := json.Marshal(record.Warnings)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`^INSERT INTO "generation_history"`).
		WithArgs("run-1", "blueprints/web", docRaw, warnRaw, int64(1700000000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`^DELETE FROM "generation_history"`).
		WithArgs("blueprints/web", 5).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.Record(context.Background(), record))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResponsesWithMockPool(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	docRaw, err := json.Marshal(scalar.Document{"n": float64(1)})
	require.NoError(t, err)
	warnRaw, err := json.Marshal([]scalar.Warning{})
	require.NoError(t, err)

	mock.ExpectQuery(`^SELECT id, ruleset_id, document, warnings, created_at`).
		WithArgs("blueprints/web").
		WillReturnRows(pgxmock.NewRows([]string{"id", "ruleset_id", "document", "warnings", "created_at"}).
			AddRow("run-2", "blueprints/web", docRaw, warnRaw, int64(200)).
			AddRow("run-1", "blueprints/web", docRaw, warnRaw, int64(100)))

	records, err := store.Responses(context.Background(), "blueprints/web")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-2", records[0].ID)
	assert.Equal(t, int64(100), records[1].CreatedAt)
	assert.Equal(t, scalar.Document{"n": float64(1)}, records[0].Document)

	require.NoError(t, mock.ExpectationsWereMet())
}
