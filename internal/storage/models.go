// Package storage provides database models and repositories for the memory engine.
package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Scope represents item visibility scope.
type Scope string

const (
	ScopeProject         Scope = "project"
	ScopeWorkspaceShared Scope = "workspace_shared"
	ScopeGlobal          Scope = "global"
)

// ItemStatus represents the lifecycle status of a memory item.
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusArchived ItemStatus = "archived"
	ItemStatusDeleted  ItemStatus = "deleted"
)

// ContentFormat represents the format of a version's content.
type ContentFormat string

const (
	FormatMarkdown ContentFormat = "markdown"
	FormatPlain    ContentFormat = "plain"
	FormatJSON     ContentFormat = "json"
)

// Distance represents the distance metric of an embedding profile.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceL2     Distance = "l2"
	DistanceIP     Distance = "ip"
)

// EventType represents the type of an outbox event.
type EventType string

const (
	EventIngestVersion  EventType = "INGEST_VERSION"
	EventEmbedVersion   EventType = "EMBED_VERSION"
	EventReindexProfile EventType = "REINDEX_PROFILE"
)

// Canonical document classes with special chunking and embedding treatment.
const (
	DocClassAppSpec            = "app_spec"
	DocClassFeatureSpec        = "feature_spec"
	DocClassImplementationPlan = "implementation_plan"
	DocClassRunbook            = "runbook"
	DocClassDecisionLog        = "decision_log"
	DocClassGlossary           = "glossary"
)

// CanonicalDocClass reports whether class gets whole-document treatment
// (overlap disabled during chunking, contextual embedding eligible).
func CanonicalDocClass(class string) bool {
	switch class {
	case DocClassAppSpec, DocClassFeatureSpec, DocClassImplementationPlan:
		return true
	}
	return false
}

// Workspace groups projects under a unique name.
type Workspace struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Project is the scoping unit for all memory data.
type Project struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ProjectKey  string
	DisplayName string
	RepoURL     sql.NullString
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemoryItem is an authored unit of memory; content lives in versions.
type MemoryItem struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Scope        Scope
	Kind         string
	CanonicalKey sql.NullString
	DocClass     sql.NullString
	Title        string
	Pinned       bool
	Status       ItemStatus
	Tags         pq.StringArray
	Metadata     json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsCanonical reports whether the item carries a canonical key.
func (i *MemoryItem) IsCanonical() bool {
	return i.CanonicalKey.Valid && i.CanonicalKey.String != ""
}

// MemoryVersion is an immutable snapshot of an item's content.
type MemoryVersion struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	ItemID        uuid.UUID
	CommitID      uuid.NullUUID
	VersionNum    int
	ContentFormat ContentFormat
	ContentText   string
	ContentJSON   json.RawMessage
	Checksum      string
	CreatedAt     time.Time
}

// Commit groups the versions produced by a single idempotent write.
type Commit struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	SessionID      sql.NullString
	IdempotencyKey string
	Author         sql.NullString
	Summary        sql.NullString
	CreatedAt      time.Time
}

// MemoryChunk is a retrieval-sized slice of a version's text.
type MemoryChunk struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	VersionID     uuid.UUID
	ChunkIndex    int
	ChunkText     string
	HeadingPath   pq.StringArray
	SectionAnchor sql.NullString
	StartChar     int
	EndChar       int
	CreatedAt     time.Time
}

// ChunkEmbedding is a dense vector for one chunk under one profile.
type ChunkEmbedding struct {
	ChunkID            uuid.UUID
	EmbeddingProfileID uuid.UUID
	ProjectID          uuid.UUID
	Vector             pgvector.Vector
	CreatedAt          time.Time
}

// EmbeddingProfile determines how embeddings are produced and queried.
type EmbeddingProfile struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	Name           string
	Provider       string
	Model          string
	Dims           int
	Distance       Distance
	IsActive       bool
	ProviderConfig json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Config decodes provider_config into the recognized key set.
func (p *EmbeddingProfile) Config() (ProviderConfig, error) {
	var cfg ProviderConfig
	if len(p.ProviderConfig) == 0 {
		return cfg, nil
	}
	err := json.Unmarshal(p.ProviderConfig, &cfg)
	return cfg, err
}

// ProviderConfig is the enumerated set of keys recognized in
// embedding_profiles.provider_config.
type ProviderConfig struct {
	BaseURL         string  `json:"base_url,omitempty"`
	APIKeyEnv       string  `json:"api_key_env,omitempty"`
	OutputDimension int     `json:"output_dimension,omitempty"`
	UseFake         bool    `json:"use_fake,omitempty"`
	LateChunking    bool    `json:"late_chunking,omitempty"`
	EfSearchMin     int     `json:"ef_search_min,omitempty"`
	EfSearchFactor  float64 `json:"ef_search_factor,omitempty"`
	EfSearchMax     int     `json:"ef_search_max,omitempty"`
	HNSWM           int     `json:"hnsw_m,omitempty"`
	HNSWEfConstruction int  `json:"hnsw_ef_construction,omitempty"`
	ContextualMaxChars  int `json:"contextual_max_chars,omitempty"`
	ContextualMaxChunks int `json:"contextual_max_chunks,omitempty"`
	ContextualStrict bool   `json:"contextual_strict,omitempty"`
}

// MemoryLink is a typed edge between two items of the same project.
type MemoryLink struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	FromItemID uuid.UUID
	ToItemID   uuid.UUID
	Relation   string
	Weight     float64
	Metadata   json.RawMessage
	CreatedAt  time.Time
}

// OutboxEvent is a durable work item recorded in the writing transaction.
type OutboxEvent struct {
	ID             int64
	ProjectID      uuid.UUID
	EventType      EventType
	Payload        json.RawMessage
	CreatedAt      time.Time
	ProcessedAt    sql.NullTime
	RetryCount     int
	NextAttemptAt  sql.NullTime
	LockedBy       sql.NullString
	LeaseExpiresAt sql.NullTime
	Error          sql.NullString
}

// IngestVersionPayload is the payload of an INGEST_VERSION event.
type IngestVersionPayload struct {
	VersionID uuid.UUID `json:"version_id"`
}

// EmbedVersionPayload is the payload of an EMBED_VERSION event.
type EmbedVersionPayload struct {
	VersionID          uuid.UUID  `json:"version_id"`
	EmbeddingProfileID *uuid.UUID `json:"embedding_profile_id,omitempty"`
}

// ReindexProfilePayload is the payload of a REINDEX_PROFILE event.
type ReindexProfilePayload struct {
	EmbeddingProfileID uuid.UUID `json:"embedding_profile_id"`
}
