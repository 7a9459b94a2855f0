// Package issuer creates, revokes, lists and exports preview grants on behalf
// of administrators.
package issuer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sipico/preview-gate/internal/grant"
	"github.com/sipico/preview-gate/internal/metrics"
	"github.com/sipico/preview-gate/internal/storage"
)

// SiteWideLabel names the target of a site-wide grant in listings and exports.
const SiteWideLabel = "Entire Website"

// Options configures a Service. Zero values get defaults.
type Options struct {
	Minter   grant.Minter
	Now      func() time.Time
	Location *time.Location // site timezone; default UTC
	SiteURL  string         // base URL for shareable links, without trailing slash
	Logger   *slog.Logger
}

// Service is the admin-side grant manager.
type Service struct {
	store   storage.TokenStore
	minter  grant.Minter
	now     func() time.Time
	loc     *time.Location
	siteURL string
	logger  *slog.Logger
}

// New creates a Service backed by store.
func New(store storage.TokenStore, opts Options) *Service {
	s := &Service{
		store:   store,
		minter:  opts.Minter,
		now:     opts.Now,
		loc:     opts.Location,
		siteURL: strings.TrimRight(opts.SiteURL, "/"),
		logger:  opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Location returns the site timezone used for input and display.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Create validates req, mints a grant and persists it. Validation failures
// wrap grant.ErrValidation and leave the store untouched; a failed save is
// returned and the grant is not issued.
func (s *Service) Create(ctx context.Context, req grant.Request) (*grant.Grant, error) {
	grants, err := s.store.Load(ctx)
	if err != nil {
		metrics.RecordStorageError("load")
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}

	g, err := s.minter.New(req, grants, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, grants.With(g)); err != nil {
		metrics.RecordStorageError("save")
		return nil, fmt.Errorf("failed to save grant: %w", err)
	}

	metrics.RecordGrantIssued(g.Scope.Kind.String())
	s.logger.Info("grant issued",
		"client", g.ClientName,
		"scope", g.Scope.Kind.String(),
		"resource", string(g.Scope.Resource),
		"expires_at", g.ExpiresAt,
	)
	return g, nil
}

// Delete revokes token. Deleting an absent token is not an error and does not
// write to the store; the returned bool reports whether a grant was removed.
func (s *Service) Delete(ctx context.Context, token string) (bool, error) {
	grants, err := s.store.Load(ctx)
	if err != nil {
		metrics.RecordStorageError("load")
		return false, fmt.Errorf("failed to load grants: %w", err)
	}

	if _, ok := grants[token]; !ok {
		return false, nil
	}

	if err := s.store.Save(ctx, grants.Without(token)); err != nil {
		metrics.RecordStorageError("save")
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}

	metrics.RecordGrantDeleted()
	s.logger.Info("grant revoked")
	return true, nil
}

// Entry is a grant prepared for display.
type Entry struct {
	Grant   *grant.Grant
	Label   string // resource path or SiteWideLabel
	Link    string // shareable URL carrying the token
	Expired bool
}

// List returns every stored grant, newest first. Expired grants are included
// and flagged; listing never removes anything.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	grants, err := s.store.Load(ctx)
	if err != nil {
		metrics.RecordStorageError("load")
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}

	now := s.now()
	entries := make([]Entry, 0, len(grants))
	for _, g := range grants {
		entries = append(entries, s.entry(g, now))
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Grant, entries[j].Grant
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Token < b.Token
	})
	return entries, nil
}

// Entry describes a single grant for display.
func (s *Service) Entry(g *grant.Grant) Entry {
	return s.entry(g, s.now())
}

func (s *Service) entry(g *grant.Grant, now time.Time) Entry {
	return Entry{
		Grant:   g,
		Label:   Label(g),
		Link:    s.Link(g),
		Expired: g.Expired(now),
	}
}

// Label names the target of g.
func Label(g *grant.Grant) string {
	if g.Scope.Kind == grant.ScopeSiteWide {
		return SiteWideLabel
	}
	return string(g.Scope.Resource)
}

// Link returns the shareable URL for g: the resource URL (or the site root for
// site-wide grants) with the token as query parameter.
func (s *Service) Link(g *grant.Grant) string {
	target := s.siteURL + "/"
	if g.Scope.Kind == grant.ScopeSinglePage && g.Scope.Resource != grant.Root {
		target = s.siteURL + string(g.Scope.Resource)
	}
	return target + "?token=" + url.QueryEscape(g.Token)
}
