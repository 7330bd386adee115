package engine

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/commit"
	"github.com/memento-ai/memento/internal/storage"
)

func commitRow(commitID, projectID uuid.UUID, key string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "session_id", "idempotency_key", "author", "summary", "created_at",
	}).AddRow(commitID.String(), projectID.String(), nil, key, nil, nil, time.Now())
}

func dedupVersionRow(versionID, projectID, itemID, commitID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "item_id", "commit_id", "version_num",
		"content_format", "content_text", "content_json", "checksum", "created_at",
	}).AddRow(versionID.String(), projectID.String(), itemID.String(), commitID.String(), 1,
		"markdown", "content", nil, commit.Checksum("content"), time.Now())
}

func TestEngine_Commit_NamespacesIdempotencyKey(t *testing.T) {
	e, mock := testEngine(t)
	projectID := uuid.New()
	commitID := uuid.New()
	itemID := uuid.New()
	versionID := uuid.New()

	// The read-back dedup lookup sees the tool-prefixed key, not the raw one.
	mock.ExpectQuery("FROM commits").
		WithArgs(projectID, "memory_commit:key-1").
		WillReturnRows(commitRow(commitID, projectID, "memory_commit:key-1"))
	mock.ExpectQuery("FROM memory_versions").
		WithArgs(commitID, projectID).
		WillReturnRows(dedupVersionRow(versionID, projectID, itemID, commitID))

	result, err := e.Commit(context.Background(), commit.Request{
		ProjectID:      projectID,
		IdempotencyKey: "key-1",
		Entries:        []commit.Entry{{Kind: "note", Title: "t", ContentText: "content"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Deduped)
	assert.Equal(t, commitID, result.CommitID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_CanonicalUpsert_KeyDoesNotCollideWithCommit(t *testing.T) {
	// The same raw key flowing through the canonical tool lands in its own
	// namespace, so it never dedups against a plain commit's key.
	e, mock := testEngine(t)
	projectID := uuid.New()
	commitID := uuid.New()
	itemID := uuid.New()
	versionID := uuid.New()

	mock.ExpectQuery("FROM commits").
		WithArgs(projectID, "canonical_doc_upsert:key-1").
		WillReturnRows(commitRow(commitID, projectID, "canonical_doc_upsert:key-1"))
	mock.ExpectQuery("FROM memory_versions").
		WithArgs(commitID, projectID).
		WillReturnRows(dedupVersionRow(versionID, projectID, itemID, commitID))

	result, err := e.CanonicalUpsert(context.Background(), commit.CanonicalUpsertParams{
		ProjectID:      projectID,
		CanonicalKey:   "docs/arch",
		DocClass:       storage.DocClassRunbook,
		ContentText:    "content",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Deduped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
