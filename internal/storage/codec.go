package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sipico/preview-gate/internal/grant"
)

// record is the persisted form of a grant. page_id is a URL path and both
// timestamps are RFC 3339; records in any other shape are rejected as corrupt.
type record struct {
	ClientName string    `json:"client_name"`
	PageID     string    `json:"page_id,omitempty"`
	SiteWide   bool      `json:"site_wide"`
	ShowBar    bool      `json:"show_bar"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func encodeSet(grants grant.Set) ([]byte, error) {
	out := make(map[string]record, len(grants))
	for token, g := range grants {
		if g == nil {
			continue
		}
		rec := record{
			ClientName: g.ClientName,
			SiteWide:   g.Scope.Kind == grant.ScopeSiteWide,
			ShowBar:    g.ShowBanner,
			CreatedAt:  g.CreatedAt.UTC(),
			ExpiresAt:  g.ExpiresAt.UTC(),
		}
		if !rec.SiteWide {
			rec.PageID = string(g.Scope.Resource)
		}
		out[token] = rec
	}
	return json.Marshal(out)
}

func decodeSet(data []byte) (grant.Set, error) {
	grants := grant.NewSet()
	if len(data) == 0 {
		return grants, nil
	}

	var in map[string]record
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	for token, rec := range in {
		scope := grant.SiteWide()
		if !rec.SiteWide {
			// An empty page would otherwise normalize to "/" and lock the home page.
			if strings.TrimSpace(rec.PageID) == "" {
				return nil, fmt.Errorf("%w: single-page grant for %q has no page_id", ErrCorrupt, rec.ClientName)
			}
			scope = grant.SinglePage(grant.ResourceID(rec.PageID))
		}
		grants[token] = &grant.Grant{
			Token:      token,
			ClientName: rec.ClientName,
			Scope:      scope,
			CreatedAt:  rec.CreatedAt.UTC(),
			ExpiresAt:  rec.ExpiresAt.UTC(),
			ShowBanner: rec.ShowBar,
		}
	}
	return grants, nil
}
