package commit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/storage"
)

// docClassKinds is the closed mapping from canonical doc_class to item kind.
var docClassKinds = map[string]string{
	storage.DocClassAppSpec:            "spec",
	storage.DocClassFeatureSpec:        "spec",
	storage.DocClassImplementationPlan: "plan",
	storage.DocClassRunbook:            "runbook",
	storage.DocClassDecisionLog:        "decision",
	storage.DocClassGlossary:           "reference",
}

// KindForDocClass infers the item kind for a canonical doc_class.
func KindForDocClass(docClass string) string {
	if kind, ok := docClassKinds[docClass]; ok {
		return kind
	}
	return "doc"
}

// KnownDocClass reports whether docClass belongs to the taxonomy.
func KnownDocClass(docClass string) bool {
	_, ok := docClassKinds[docClass]
	return ok
}

// CanonicalUpsertParams describes one canonical document write.
type CanonicalUpsertParams struct {
	ProjectID      uuid.UUID
	CanonicalKey   string
	DocClass       string
	Title          string
	ContentFormat  storage.ContentFormat
	ContentText    string
	Tags           []string
	Metadata       json.RawMessage
	IdempotencyKey string
	SessionID      string
	Author         string
}

// CanonicalUpsert writes a canonical document: pinned by default, kind
// inferred from doc_class, addressed by canonical key so repeated upserts
// version the same item.
func (c *Coordinator) CanonicalUpsert(ctx context.Context, params CanonicalUpsertParams) (*Result, error) {
	if params.CanonicalKey == "" {
		return nil, memerr.Validation("canonical_key is required")
	}
	if !KnownDocClass(params.DocClass) {
		return nil, memerr.Newf(memerr.KindValidation, "unknown doc_class %q", params.DocClass)
	}

	title := params.Title
	if title == "" {
		title = params.CanonicalKey
	}
	format := params.ContentFormat
	if format == "" {
		format = storage.FormatMarkdown
	}

	return c.Commit(ctx, Request{
		ProjectID:      params.ProjectID,
		IdempotencyKey: params.IdempotencyKey,
		SessionID:      params.SessionID,
		Author:         params.Author,
		Summary:        "canonical upsert " + params.CanonicalKey,
		Entries: []Entry{{
			CanonicalKey:  params.CanonicalKey,
			Kind:          KindForDocClass(params.DocClass),
			Scope:         storage.ScopeProject,
			DocClass:      params.DocClass,
			Title:         title,
			Pinned:        true,
			Tags:          params.Tags,
			Metadata:      params.Metadata,
			ContentFormat: format,
			ContentText:   params.ContentText,
		}},
	})
}
