package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/commit"
	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/observability"
)

func testEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return New(Params{
		DB:          db,
		Log:         log,
		Config:      config.DefaultConfig(),
		Coordinator: commit.NewCoordinator(db, log),
	}), mock
}

func versionRows(versionID, projectID, itemID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "item_id", "commit_id", "version_num",
		"content_format", "content_text", "content_json", "checksum", "created_at",
	}).AddRow(versionID.String(), projectID.String(), itemID.String(), nil, 1,
		"markdown", "# MyApp", nil, "sum", time.Now())
}

func chunkRowSet() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "version_id", "chunk_index", "chunk_text",
		"heading_path", "section_anchor", "start_char", "end_char", "created_at",
	})
}

func TestEngine_Outline(t *testing.T) {
	e, mock := testEngine(t)
	projectID := uuid.New()
	itemID := uuid.New()
	versionID := uuid.New()

	mock.ExpectQuery("FROM memory_versions").
		WithArgs(itemID, projectID).
		WillReturnRows(versionRows(versionID, projectID, itemID))

	rows := chunkRowSet().
		AddRow(uuid.NewString(), projectID.String(), versionID.String(), 0,
			"# MyApp", "{MyApp}", "h1:myapp", 0, 7, time.Now()).
		AddRow(uuid.NewString(), projectID.String(), versionID.String(), 1,
			"## Auth part one", "{MyApp,Auth}", "h2:myapp.auth", 7, 23, time.Now()).
		AddRow(uuid.NewString(), projectID.String(), versionID.String(), 2,
			"Auth part two", "{MyApp,Auth}", "h2:myapp.auth", 23, 36, time.Now())
	mock.ExpectQuery("FROM memory_chunks").
		WithArgs(versionID, projectID).
		WillReturnRows(rows)

	outline, err := e.Outline(context.Background(), projectID, itemID)
	require.NoError(t, err)

	// Anchors appear once each, in document order.
	require.Len(t, outline, 2)
	assert.Equal(t, "h1:myapp", outline[0].Anchor)
	assert.Equal(t, "h2:myapp.auth", outline[1].Anchor)
	assert.Equal(t, []string{"MyApp", "Auth"}, []string(outline[1].HeadingPath))
	assert.Contains(t, outline[1].URI, "#h2:myapp.auth")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_GetSection_ConcatenatesChunks(t *testing.T) {
	e, mock := testEngine(t)
	projectID := uuid.New()
	itemID := uuid.New()
	versionID := uuid.New()

	mock.ExpectQuery("FROM memory_versions").
		WithArgs(itemID, projectID).
		WillReturnRows(versionRows(versionID, projectID, itemID))

	rows := chunkRowSet().
		AddRow(uuid.NewString(), projectID.String(), versionID.String(), 0,
			"first half", "{MyApp,Auth}", "h2:myapp.auth", 0, 10, time.Now()).
		AddRow(uuid.NewString(), projectID.String(), versionID.String(), 1,
			"second half", "{MyApp,Auth}", "h2:myapp.auth", 10, 21, time.Now()).
		AddRow(uuid.NewString(), projectID.String(), versionID.String(), 2,
			"other section", "{MyApp,Other}", "h2:myapp.other", 21, 34, time.Now())
	mock.ExpectQuery("FROM memory_chunks").
		WithArgs(versionID, projectID).
		WillReturnRows(rows)

	section, err := e.GetSection(context.Background(), projectID, itemID, "h2:myapp.auth")
	require.NoError(t, err)
	assert.Equal(t, "first half\nsecond half", section.Text)
	assert.Equal(t, []string{"MyApp", "Auth"}, []string(section.HeadingPath))
}

func TestEngine_GetSection_NotFound(t *testing.T) {
	e, mock := testEngine(t)
	projectID := uuid.New()
	itemID := uuid.New()
	versionID := uuid.New()

	mock.ExpectQuery("FROM memory_versions").
		WithArgs(itemID, projectID).
		WillReturnRows(versionRows(versionID, projectID, itemID))
	mock.ExpectQuery("FROM memory_chunks").
		WithArgs(versionID, projectID).
		WillReturnRows(chunkRowSet())

	_, err := e.GetSection(context.Background(), projectID, itemID, "h2:absent")
	require.Error(t, err)
	assert.Equal(t, memerr.KindNotFound, memerr.KindOf(err))
}

func TestEngine_GetSection_RequiresAnchor(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.GetSection(context.Background(), uuid.New(), uuid.New(), "")
	assert.Equal(t, memerr.KindValidation, memerr.KindOf(err))
}
