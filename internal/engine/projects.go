package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/embedding"
	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/storage"
)

// ResolveProjectParams identifies a project by workspace plus a key source,
// creating both on first use. When no explicit key is given one is derived
// from the repo URL, or failing that the working directory.
type ResolveProjectParams struct {
	Workspace   string `json:"workspace"`
	ProjectKey  string `json:"project_key,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`
	Cwd         string `json:"cwd,omitempty"`
}

// deriveProjectKey picks the key source in priority order: an explicit key
// is used verbatim; otherwise the repo URL, then the working directory, is
// hashed into a stable key so the same checkout always resolves to the same
// project.
func deriveProjectKey(params ResolveProjectParams) string {
	if params.ProjectKey != "" {
		return params.ProjectKey
	}
	source := params.RepoURL
	if source == "" {
		source = params.Cwd
	}
	if source == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(source))
	return "auto-" + hex.EncodeToString(sum[:8])
}

// ResolveProject returns the project for (workspace, key), creating the
// workspace and project when they do not exist yet.
func (e *Engine) ResolveProject(ctx context.Context, params ResolveProjectParams) (*storage.Project, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if params.Workspace == "" {
		return nil, memerr.Validation("workspace is required")
	}
	key := deriveProjectKey(params)
	if key == "" {
		return nil, memerr.Validation("one of project_key, repo_url, or cwd is required")
	}

	ws, err := e.repos.Workspaces.GetOrCreate(ctx, params.Workspace)
	if err != nil {
		return nil, translate(err, "resolve workspace")
	}

	project, err := e.repos.Projects.GetByKey(ctx, ws.ID, key)
	if err == nil {
		return project, nil
	}
	if !isNotFound(err) {
		return nil, translate(err, "resolve project")
	}

	displayName := params.DisplayName
	if displayName == "" {
		displayName = key
	}
	project = &storage.Project{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		ProjectKey:  key,
		DisplayName: displayName,
		RepoURL:     nullString(params.RepoURL),
		Status:      "active",
	}
	if err := e.repos.Projects.Create(ctx, project); err != nil {
		// Lost a race with a concurrent resolve; the row exists now.
		if isConflict(err) {
			return e.repos.Projects.GetByKey(ctx, ws.ID, key)
		}
		return nil, translate(err, "create project")
	}
	return project, nil
}

// StartSession mints a session identifier for stamping commits. Sessions
// carry no server state; the id groups a client conversation's writes.
func (e *Engine) StartSession() string {
	return uuid.NewString()
}

// ProfileParams describes a new embedding profile.
type ProfileParams struct {
	Name           string           `json:"name"`
	Provider       string           `json:"provider"`
	Model          string           `json:"model"`
	Dims           int              `json:"dims"`
	Distance       storage.Distance `json:"distance,omitempty"`
	ProviderConfig json.RawMessage  `json:"provider_config,omitempty"`
}

// CreateProfile registers an embedding profile for the project.
func (e *Engine) CreateProfile(ctx context.Context, projectID uuid.UUID, params ProfileParams) (*storage.EmbeddingProfile, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if params.Name == "" || params.Model == "" {
		return nil, memerr.Validation("name and model are required")
	}
	if params.Dims <= 0 {
		return nil, memerr.Validation("dims must be positive")
	}
	switch params.Provider {
	case embedding.ProviderVoyage, embedding.ProviderJina, embedding.ProviderOpenAICompat, embedding.ProviderFake:
	default:
		return nil, memerr.Newf(memerr.KindValidation, "unknown provider %q", params.Provider)
	}
	distance := params.Distance
	if distance == "" {
		distance = storage.DistanceCosine
	}
	switch distance {
	case storage.DistanceCosine, storage.DistanceL2, storage.DistanceIP:
	default:
		return nil, memerr.Newf(memerr.KindValidation, "unknown distance %q", distance)
	}

	profile := &storage.EmbeddingProfile{
		ID:             uuid.New(),
		ProjectID:      projectID,
		Name:           params.Name,
		Provider:       params.Provider,
		Model:          params.Model,
		Dims:           params.Dims,
		Distance:       distance,
		ProviderConfig: params.ProviderConfig,
	}
	if err := e.repos.Profiles.Create(ctx, profile); err != nil {
		return nil, translate(err, "profile name already in use")
	}
	return profile, nil
}

// ListProfiles lists the project's embedding profiles.
func (e *Engine) ListProfiles(ctx context.Context, projectID uuid.UUID) ([]*storage.EmbeddingProfile, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	profiles, err := e.repos.Profiles.List(ctx, projectID)
	if err != nil {
		return nil, translate(err, "list profiles")
	}
	return profiles, nil
}

// ActivateProfile makes the profile the project's active one, ensures its
// ANN index, and schedules a full reindex.
func (e *Engine) ActivateProfile(ctx context.Context, projectID, profileID uuid.UUID) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	profile, err := e.repos.Profiles.GetByID(ctx, projectID, profileID)
	if err != nil {
		return translate(err, "profile not found")
	}
	if err := e.repos.Profiles.Activate(ctx, projectID, profileID); err != nil {
		return translate(err, "activate profile")
	}
	if err := e.indexes.Ensure(ctx, profile); err != nil {
		return translate(err, "ensure vector index")
	}
	err = outbox.Enqueue(ctx, e.db, projectID, storage.EventReindexProfile,
		storage.ReindexProfilePayload{EmbeddingProfileID: profileID})
	if err != nil {
		return translate(err, "schedule reindex")
	}
	e.results.InvalidateProject(ctx, projectID)
	return nil
}

// DeleteProfile removes a profile, its embeddings, and its ANN index.
func (e *Engine) DeleteProfile(ctx context.Context, projectID, profileID uuid.UUID) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	profile, err := e.repos.Profiles.GetByID(ctx, projectID, profileID)
	if err != nil {
		return translate(err, "profile not found")
	}
	if profile.IsActive {
		return memerr.Conflict("cannot delete the active profile")
	}
	if err := e.indexes.Drop(ctx, profile); err != nil {
		return translate(err, "drop vector index")
	}
	if err := e.repos.Profiles.Delete(ctx, projectID, profileID); err != nil {
		return translate(err, "delete profile")
	}
	return nil
}
