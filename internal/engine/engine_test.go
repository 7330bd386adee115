package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/storage"
)

func TestTranslate_MapsStorageSentinels(t *testing.T) {
	assert.Equal(t, memerr.KindNotFound, memerr.KindOf(translate(storage.ErrNotFound, "item")))
	assert.Equal(t, memerr.KindConflict, memerr.KindOf(translate(storage.ErrConflict, "item")))
	assert.Equal(t, memerr.KindValidation, memerr.KindOf(translate(storage.ErrNoProject, "")))
	assert.Equal(t, memerr.KindInternal, memerr.KindOf(translate(errors.New("boom"), "op")))
	assert.Nil(t, translate(nil, "op"))
}

func TestTranslate_PassesKindedErrorsThrough(t *testing.T) {
	original := memerr.New(memerr.KindForbidden, "path outside allowed roots")
	got := translate(fmt.Errorf("wrapped: %w", original), "other message")

	var kinded *memerr.Error
	require.ErrorAs(t, got, &kinded)
	assert.Equal(t, memerr.KindForbidden, kinded.Kind)
	assert.Equal(t, "path outside allowed roots", kinded.Message)
}

func TestPathAllowed(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "docs")
	cfg := config.DefaultConfig()
	cfg.Engine.AllowedRoots = []string{root}
	e := &Engine{cfg: cfg}

	assert.True(t, e.pathAllowed(root))
	assert.True(t, e.pathAllowed(filepath.Join(root, "guide.md")))
	assert.True(t, e.pathAllowed(filepath.Join(root, "sub", "deep.md")))

	assert.False(t, e.pathAllowed(filepath.Join(string(filepath.Separator), "srv", "docs-evil", "x.md")))
	assert.False(t, e.pathAllowed(filepath.Join(string(filepath.Separator), "etc", "passwd")))
}

func TestPathAllowed_NoRootsDeniesAll(t *testing.T) {
	e := &Engine{cfg: config.DefaultConfig()}
	assert.False(t, e.pathAllowed(filepath.Join(string(filepath.Separator), "anything")))
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, storage.FormatMarkdown, formatForPath("/docs/readme.md"))
	assert.Equal(t, storage.FormatMarkdown, formatForPath("/docs/NOTES.MARKDOWN"))
	assert.Equal(t, storage.FormatJSON, formatForPath("/data/config.json"))
	assert.Equal(t, storage.FormatPlain, formatForPath("/logs/output.txt"))
	assert.Equal(t, storage.FormatPlain, formatForPath("/bin/tool"))
}
