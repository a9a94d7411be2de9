package internal

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahino/scalar"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(scalar.StorageConfig{
		Directory:        t.TempDir(),
		RuleHistoryLimit: 3,
		ResponseLimit:    2,
	}, nil)
	require.NoError(t, err)
	return store
}

func ruleSetDoc(id, apiType string) *scalar.RuleSetDocument {
	return &scalar.RuleSetDocument{
		ID:      id,
		APIType: apiType,
		Rules: scalar.RuleSet{
			Defaults: scalar.RuleList{
				scalar.UseSingleRule{SourceEntity: scalar.MustParsePath("spec.resources.app_profile_list")},
			},
		},
	}
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ruleSetDoc("blueprints/web", "blueprint")))

	loaded, err := store.Load(ctx, "blueprints/web")
	require.NoError(t, err)
	assert.Equal(t, "blueprints/web", loaded.ID)
	assert.Equal(t, "blueprint", loaded.APIType)
	require.Len(t, loaded.Rules.Defaults, 1)
	assert.Equal(t, scalar.RuleKindUseSingle, loaded.Rules.Defaults[0].Kind())
	assert.NotZero(t, loaded.CreatedAt)
	assert.NotZero(t, loaded.UpdatedAt)
}

func TestFileStoreLoadNotFound(t *testing.T) {
	store := newTestFileStore(t)

	_, err := store.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, scalar.IsNotFoundError(err))
}

func TestFileStoreSaveRequiresID(t *testing.T) {
	store := newTestFileStore(t)

	err := store.Save(context.Background(), &scalar.RuleSetDocument{})
	require.Error(t, err)
	assert.True(t, scalar.IsStorageError(err))
}

func TestFileStoreRevisionHistoryCapped(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, ruleSetDoc("caps", fmt.Sprintf("rev-%d", i))))
	}

	history, err := store.RuleHistory(ctx, "caps")
	require.NoError(t, err)
	// Limit is 3: newest prior revision first, oldest revisions dropped.
	require.Len(t, history, 3)
	assert.Equal(t, "rev-3", history[0].APIType)
	assert.Equal(t, "rev-1", history[2].APIType)

	current, err := store.Load(ctx, "caps")
	require.NoError(t, err)
	assert.Equal(t, "rev-4", current.APIType)
}

func TestFileStoreSaveKeepsCreatedAt(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ruleSetDoc("keep", "v1")))
	first, err := store.Load(ctx, "keep")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, ruleSetDoc("keep", "v2")))
	second, err := store.Load(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestFileStoreDelete(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ruleSetDoc("gone", "blueprint")))
	require.NoError(t, store.Delete(ctx, "gone"))

	_, err := store.Load(ctx, "gone")
	assert.True(t, scalar.IsNotFoundError(err))

	err = store.Delete(ctx, "gone")
	assert.True(t, scalar.IsNotFoundError(err))
}

func TestFileStoreList(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ruleSetDoc("b", "x")))
	require.NoError(t, store.Save(ctx, ruleSetDoc("a", "x")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestFileStoreResponsesCappedNewestFirst(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Record(ctx, &scalar.GenerationRecord{
			ID:        fmt.Sprintf("run-%d", i),
			RuleSetID: "caps",
			Document:  scalar.Document{"n": float64(i)},
			CreatedAt: int64(i),
		}))
	}

	responses, err := store.Responses(ctx, "caps")
	require.NoError(t, err)
	// Limit is 2, newest first.
	require.Len(t, responses, 2)
	assert.Equal(t, "run-3", responses[0].ID)
	assert.Equal(t, "run-2", responses[1].ID)
}

func TestFileStoreResponsesIsolatedByRuleSet(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &scalar.GenerationRecord{ID: "r1", RuleSetID: "one"}))

	responses, err := store.Responses(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, responses)
}
