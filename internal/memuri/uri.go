// Package memuri builds and parses memory:// resource URIs.
package memuri

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// URI identifies an item, optionally pinned to a version and a section.
type URI struct {
	ProjectID  uuid.UUID
	ItemID     uuid.UUID
	VersionNum int // 0 means latest
	Anchor     string
}

// Item returns the URI of an item's latest version.
func Item(projectID, itemID uuid.UUID) string {
	return URI{ProjectID: projectID, ItemID: itemID}.String()
}

// Version returns the URI of a specific version.
func Version(projectID, itemID uuid.UUID, versionNum int) string {
	return URI{ProjectID: projectID, ItemID: itemID, VersionNum: versionNum}.String()
}

// Section returns the URI of a section within an item's latest version.
func Section(projectID, itemID uuid.UUID, anchor string) string {
	return URI{ProjectID: projectID, ItemID: itemID, Anchor: anchor}.String()
}

// String renders the URI in its wire form.
func (u URI) String() string {
	s := fmt.Sprintf("memory://projects/%s/items/%s", u.ProjectID, u.ItemID)
	if u.VersionNum > 0 {
		s += fmt.Sprintf("@v%d", u.VersionNum)
	}
	if u.Anchor != "" {
		s += "#" + u.Anchor
	}
	return s
}

var uriRe = regexp.MustCompile(`^memory://projects/([0-9a-f-]{36})/items/([0-9a-f-]{36})(?:@v(\d+))?(?:#(.+))?$`)

// Parse parses a memory:// URI.
func Parse(s string) (URI, error) {
	m := uriRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, fmt.Errorf("invalid memory URI: %s", s)
	}

	projectID, err := uuid.Parse(m[1])
	if err != nil {
		return URI{}, fmt.Errorf("invalid project id in URI: %w", err)
	}
	itemID, err := uuid.Parse(m[2])
	if err != nil {
		return URI{}, fmt.Errorf("invalid item id in URI: %w", err)
	}

	u := URI{ProjectID: projectID, ItemID: itemID, Anchor: m[4]}
	if m[3] != "" {
		u.VersionNum, _ = strconv.Atoi(m[3])
	}
	return u, nil
}
