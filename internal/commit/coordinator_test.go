package commit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

func testCoordinator() *Coordinator {
	log := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return NewCoordinator(nil, log)
}

func TestNamespaceKey(t *testing.T) {
	assert.Equal(t, "memory_commit:abc", NamespaceKey(ToolMemoryCommit, "abc"))
	assert.NotEqual(t,
		NamespaceKey(ToolMemoryCommit, "abc"),
		NamespaceKey(ToolCanonicalDocUpsert, "abc"))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Checksum(""))
	assert.Equal(t, Checksum("same"), Checksum("same"))
	assert.NotEqual(t, Checksum("a"), Checksum("b"))
	assert.Len(t, Checksum("anything"), 64)
}

func TestKindForDocClass(t *testing.T) {
	assert.Equal(t, "spec", KindForDocClass(storage.DocClassAppSpec))
	assert.Equal(t, "spec", KindForDocClass(storage.DocClassFeatureSpec))
	assert.Equal(t, "plan", KindForDocClass(storage.DocClassImplementationPlan))
	assert.Equal(t, "runbook", KindForDocClass(storage.DocClassRunbook))
	assert.Equal(t, "decision", KindForDocClass(storage.DocClassDecisionLog))
	assert.Equal(t, "reference", KindForDocClass(storage.DocClassGlossary))
	assert.Equal(t, "doc", KindForDocClass("something-else"))
}

func TestKnownDocClass(t *testing.T) {
	assert.True(t, KnownDocClass(storage.DocClassRunbook))
	assert.False(t, KnownDocClass("poem"))
	assert.False(t, KnownDocClass(""))
}

func TestCommit_ValidatesRequest(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()
	projectID := uuid.New()

	_, err := c.Commit(ctx, Request{IdempotencyKey: "k", Entries: []Entry{{}}})
	requireKind(t, err, memerr.KindValidation)

	_, err = c.Commit(ctx, Request{ProjectID: projectID, Entries: []Entry{{}}})
	requireKind(t, err, memerr.KindValidation)

	_, err = c.Commit(ctx, Request{ProjectID: projectID, IdempotencyKey: "k"})
	requireKind(t, err, memerr.KindValidation)
}

func TestCanonicalUpsert_Validates(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()

	_, err := c.CanonicalUpsert(ctx, CanonicalUpsertParams{
		ProjectID: uuid.New(),
		DocClass:  storage.DocClassRunbook,
	})
	requireKind(t, err, memerr.KindValidation)

	_, err = c.CanonicalUpsert(ctx, CanonicalUpsertParams{
		ProjectID:    uuid.New(),
		CanonicalKey: "docs/oncall",
		DocClass:     "poem",
	})
	requireKind(t, err, memerr.KindValidation)
}

func TestValidateNewItem(t *testing.T) {
	assert.NoError(t, validateNewItem(Entry{Kind: "note", Title: "t"}))
	assert.NoError(t, validateNewItem(Entry{Kind: "note", Title: "t", Scope: storage.ScopeGlobal}))

	err := validateNewItem(Entry{Title: "t"})
	requireKind(t, err, memerr.KindValidation)

	err = validateNewItem(Entry{Kind: "note"})
	requireKind(t, err, memerr.KindValidation)

	err = validateNewItem(Entry{Kind: "note", Title: "t", Scope: "galaxy"})
	requireKind(t, err, memerr.KindValidation)
}

func TestCommit_DedupesOnIdempotencyKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	c := NewCoordinator(db, log)

	projectID := uuid.New()
	commitID := uuid.New()
	itemID := uuid.New()
	versionID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM commits").
		WithArgs(projectID, "key-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "session_id", "idempotency_key", "author", "summary", "created_at",
		}).AddRow(commitID.String(), projectID.String(), nil, "key-1", nil, nil, now))

	mock.ExpectQuery("FROM memory_versions").
		WithArgs(commitID, projectID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "item_id", "commit_id", "version_num",
			"content_format", "content_text", "content_json", "checksum", "created_at",
		}).AddRow(versionID.String(), projectID.String(), itemID.String(), commitID.String(), 2,
			"markdown", "content", nil, Checksum("content"), now))

	result, err := c.Commit(context.Background(), Request{
		ProjectID:      projectID,
		IdempotencyKey: "key-1",
		Entries:        []Entry{{Kind: "note", Title: "t", ContentText: "different content"}},
	})
	require.NoError(t, err)

	// The original commit's result comes back untouched; the new entries are
	// never written.
	assert.True(t, result.Deduped)
	assert.Equal(t, commitID, result.CommitID)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, itemID, result.Entries[0].ItemID)
	assert.Equal(t, versionID, result.Entries[0].VersionID)
	assert.Equal(t, 2, result.Entries[0].VersionNum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func requireKind(t *testing.T, err error, kind memerr.Kind) {
	t.Helper()
	require.Error(t, err)
	var me *memerr.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, kind, me.Kind)
}
