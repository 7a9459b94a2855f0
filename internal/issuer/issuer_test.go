package issuer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/preview-gate/internal/grant"
	"github.com/sipico/preview-gate/internal/storage"
	"github.com/sipico/preview-gate/internal/testutil/mockstore"
)

var t0 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, store storage.TokenStore, entropy []byte) *Service {
	t.Helper()
	var m grant.Minter
	if entropy != nil {
		m.Rand = bytes.NewReader(entropy)
	}
	return New(store, Options{
		Minter:  m,
		Now:     func() time.Time { return t0 },
		SiteURL: "https://example.com/",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func newSQLite(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreate_PersistsGrant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newSQLite(t)
	svc := newService(t, store, bytes.Repeat([]byte{0xab}, grant.TokenBytes))

	g, err := svc.Create(ctx, grant.Request{
		ClientName: "  Acme  ",
		Scope:      grant.SinglePage("42/"),
		Expiry:     grant.Duration{Days: 2},
		ShowBanner: true,
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("ab", grant.TokenBytes), g.Token)
	assert.Equal(t, "Acme", g.ClientName)
	assert.Equal(t, grant.ResourceID("/42"), g.Scope.Resource)
	assert.Equal(t, t0.Add(48*time.Hour), g.ExpiresAt)
	assert.Equal(t, t0, g.CreatedAt)

	set, err := store.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, set, g.Token)
	assert.Equal(t, "Acme", set[g.Token].ClientName)
	assert.True(t, set[g.Token].ShowBanner)
}

func TestCreate_KeepsExistingGrants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newSQLite(t)
	svc := newService(t, store, nil)

	first, err := svc.Create(ctx, grant.Request{ClientName: "A", Scope: grant.SiteWide(), Expiry: grant.Duration{Hours: 1}})
	require.NoError(t, err)
	second, err := svc.Create(ctx, grant.Request{ClientName: "B", Scope: grant.SinglePage("/7"), Expiry: grant.Duration{Hours: 1}})
	require.NoError(t, err)

	set, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, first.Token)
	assert.Contains(t, set, second.Token)
}

func TestCreate_ValidationLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		req  grant.Request
	}{
		{"empty client", grant.Request{ClientName: " ", Scope: grant.SiteWide(), Expiry: grant.Duration{Days: 1}}},
		{"missing page", grant.Request{ClientName: "A", Scope: grant.Scope{Kind: grant.ScopeSinglePage}, Expiry: grant.Duration{Days: 1}}},
		{"negative duration", grant.Request{ClientName: "A", Scope: grant.SiteWide(), Expiry: grant.Duration{Hours: -1}}},
		{"bad date", grant.Request{ClientName: "A", Scope: grant.SiteWide(), Expiry: grant.AbsoluteDate("next tuesday")}},
		{"no expiry", grant.Request{ClientName: "A", Scope: grant.SiteWide()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := mockstore.New()
			svc := newService(t, store, nil)

			_, err := svc.Create(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, grant.ErrValidation)
			assert.Equal(t, 0, store.Saves())
		})
	}
}

func TestCreate_SaveFailureSurfaces(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	store.SaveFunc = func(context.Context, grant.Set) error {
		return storage.ErrStorage
	}
	svc := newService(t, store, nil)

	g, err := svc.Create(context.Background(), grant.Request{ClientName: "A", Scope: grant.SiteWide(), Expiry: grant.Duration{Days: 1}})
	assert.Nil(t, g)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.NotErrorIs(t, err, grant.ErrValidation)
}

func TestCreate_LoadFailure(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	store.LoadFunc = func(context.Context) (grant.Set, error) { return nil, storage.ErrCorrupt }
	svc := newService(t, store, nil)

	_, err := svc.Create(context.Background(), grant.Request{ClientName: "A", Scope: grant.SiteWide(), Expiry: grant.Duration{Days: 1}})
	assert.ErrorIs(t, err, storage.ErrCorrupt)
	assert.Equal(t, 0, store.Saves())
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := mockstore.New(
		&grant.Grant{Token: "aaa", ClientName: "A", Scope: grant.SiteWide(), ExpiresAt: t0.Add(time.Hour)},
		&grant.Grant{Token: "bbb", ClientName: "B", Scope: grant.SiteWide(), ExpiresAt: t0.Add(time.Hour)},
	)
	svc := newService(t, store, nil)

	removed, err := svc.Delete(ctx, "aaa")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, store.Snapshot(), "aaa")
	assert.Contains(t, store.Snapshot(), "bbb")

	removed, err = svc.Delete(ctx, "aaa")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, store.Saves(), "deleting an absent token must not write")
}

func TestDelete_SaveFailure(t *testing.T) {
	t.Parallel()
	store := mockstore.New(&grant.Grant{Token: "aaa", Scope: grant.SiteWide(), ExpiresAt: t0})
	store.SaveFunc = func(context.Context, grant.Set) error { return errors.New("read-only") }
	svc := newService(t, store, nil)

	_, err := svc.Delete(context.Background(), "aaa")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	t.Parallel()
	store := mockstore.New(
		&grant.Grant{Token: "old", ClientName: "Old", Scope: grant.SinglePage("/42"), CreatedAt: t0.Add(-48 * time.Hour), ExpiresAt: t0.Add(-time.Hour)},
		&grant.Grant{Token: "new", ClientName: "New", Scope: grant.SiteWide(), CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)},
	)
	svc := newService(t, store, nil)

	entries, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "new", entries[0].Grant.Token)
	assert.Equal(t, SiteWideLabel, entries[0].Label)
	assert.Equal(t, "https://example.com/?token=new", entries[0].Link)
	assert.False(t, entries[0].Expired)

	assert.Equal(t, "old", entries[1].Grant.Token)
	assert.Equal(t, "/42", entries[1].Label)
	assert.Equal(t, "https://example.com/42?token=old", entries[1].Link)
	assert.True(t, entries[1].Expired)
	assert.Contains(t, store.Snapshot(), "old", "listing never reaps")
}

func TestLink_EscapesToken(t *testing.T) {
	t.Parallel()
	svc := newService(t, mockstore.New(), nil)

	g := &grant.Grant{Token: "a b&c", Scope: grant.SinglePage("/")}
	assert.Equal(t, "https://example.com/?token=a+b%26c", svc.Link(g))
}

func TestExportCSV(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("CEST", 2*3600)
	store := mockstore.New(
		&grant.Grant{Token: "p1", ClientName: "Acme, Inc.", Scope: grant.SinglePage("/42"), CreatedAt: t0, ExpiresAt: t0.Add(time.Hour), ShowBanner: true},
		&grant.Grant{Token: "s1", ClientName: "Globex", Scope: grant.SiteWide(), CreatedAt: t0.Add(-time.Hour), ExpiresAt: t0.Add(24 * time.Hour)},
	)
	svc := New(store, Options{
		Now:      func() time.Time { return t0 },
		Location: loc,
		SiteURL:  "https://example.com",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Client", "Page Title", "Created At", "Expires At", "Token", "Show Info Bar", "Link"}, rows[0])
	assert.Equal(t, []string{"Acme, Inc.", "/42", "2026-10-15 14:00:00", "2026-10-15 15:00:00", "p1", "Yes", "https://example.com/42?token=p1"}, rows[1])
	assert.Equal(t, []string{"Globex", "Entire Website", "2026-10-15 13:00:00", "2026-10-16 14:00:00", "s1", "No", "https://example.com/?token=s1"}, rows[2])
}

func TestExportCSV_LoadFailure(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	store.LoadFunc = func(context.Context) (grant.Set, error) { return nil, storage.ErrStorage }
	svc := newService(t, store, nil)

	var buf bytes.Buffer
	err := svc.ExportCSV(context.Background(), &buf)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.Zero(t, buf.Len(), "nothing is written when the load fails")
}
