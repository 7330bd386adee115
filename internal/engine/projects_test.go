package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/memerr"
)

func TestDeriveProjectKey_PriorityOrder(t *testing.T) {
	explicit := deriveProjectKey(ResolveProjectParams{
		ProjectKey: "api",
		RepoURL:    "https://github.com/acme/api.git",
		Cwd:        "/home/dev/api",
	})
	assert.Equal(t, "api", explicit)

	fromRepo := deriveProjectKey(ResolveProjectParams{
		RepoURL: "https://github.com/acme/api.git",
		Cwd:     "/home/dev/api",
	})
	fromCwd := deriveProjectKey(ResolveProjectParams{Cwd: "/home/dev/api"})
	assert.True(t, strings.HasPrefix(fromRepo, "auto-"))
	assert.Len(t, fromRepo, len("auto-")+16)
	assert.NotEqual(t, fromRepo, fromCwd)

	assert.Empty(t, deriveProjectKey(ResolveProjectParams{}))
}

func TestDeriveProjectKey_StableForSameSource(t *testing.T) {
	repo := "git@github.com:acme/api.git"
	assert.Equal(t,
		deriveProjectKey(ResolveProjectParams{RepoURL: repo}),
		deriveProjectKey(ResolveProjectParams{RepoURL: repo}))
	assert.NotEqual(t,
		deriveProjectKey(ResolveProjectParams{RepoURL: repo}),
		deriveProjectKey(ResolveProjectParams{RepoURL: repo + "-fork"}))
}

func TestResolveProject_DerivesKeyFromRepoURL(t *testing.T) {
	e, mock := testEngine(t)
	wsID := uuid.New()
	projectID := uuid.New()
	repoURL := "https://github.com/acme/api.git"
	key := deriveProjectKey(ResolveProjectParams{RepoURL: repoURL})

	mock.ExpectQuery("INSERT INTO workspaces").
		WithArgs(sqlmock.AnyArg(), "acme", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(wsID.String(), "acme", time.Now()))

	// The lookup runs against the derived key, so the same repo URL always
	// resolves to the same project row.
	mock.ExpectQuery("FROM projects").
		WithArgs(wsID, key).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "workspace_id", "project_key", "display_name", "repo_url", "status", "created_at", "updated_at",
		}).AddRow(projectID.String(), wsID.String(), key, key, repoURL, "active", time.Now(), time.Now()))

	project, err := e.ResolveProject(context.Background(), ResolveProjectParams{
		Workspace: "acme",
		RepoURL:   repoURL,
	})
	require.NoError(t, err)
	assert.Equal(t, projectID, project.ID)
	assert.Equal(t, key, project.ProjectKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveProject_RequiresKeySource(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.ResolveProject(context.Background(), ResolveProjectParams{Workspace: "acme"})
	assert.Equal(t, memerr.KindValidation, memerr.KindOf(err))

	_, err = e.ResolveProject(context.Background(), ResolveProjectParams{RepoURL: "https://github.com/acme/api.git"})
	assert.Equal(t, memerr.KindValidation, memerr.KindOf(err))
}
