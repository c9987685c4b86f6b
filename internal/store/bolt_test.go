package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SavePage(ctx, DatabaseVATDeclarations, Properties{
		"period":     "2025 Q1",
		"vat_to_pay": 4500.5,
		"submitted":  true,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	page, err := s.GetPage(ctx, DatabaseVATDeclarations, id)
	require.NoError(t, err)
	assert.Equal(t, id, page.ID)
	assert.Equal(t, DatabaseVATDeclarations, page.DatabaseID)
	assert.Equal(t, "2025 Q1", page.Properties["period"])
	assert.Equal(t, 4500.5, page.Properties["vat_to_pay"])
	assert.Equal(t, true, page.Properties["submitted"])
	assert.False(t, page.CreatedAt.IsZero())
}

func TestBoltStore_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetPage(ctx, DatabaseVATArchive, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SavePage(ctx, DatabaseVATArchive, Properties{"a": 1})
	require.NoError(t, err)

	_, err = s.GetPage(ctx, DatabaseVATArchive, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdatePage(ctx, DatabaseVATArchive, "missing", Properties{"a": 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_UpdateMergesProperties(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SavePage(ctx, DatabaseVATDeclarations, Properties{"status": "draft", "entity": "Hypervisual SA"})
	require.NoError(t, err)

	require.NoError(t, s.UpdatePage(ctx, DatabaseVATDeclarations, id, Properties{"status": "submitted"}))

	page, err := s.GetPage(ctx, DatabaseVATDeclarations, id)
	require.NoError(t, err)
	assert.Equal(t, "submitted", page.Properties["status"])
	assert.Equal(t, "Hypervisual SA", page.Properties["entity"])
	assert.False(t, page.UpdatedAt.Before(page.CreatedAt))
}

func TestBoltStore_Query(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []Properties{
		{"period": "2024 Q4", "end_date": "2024-12-31", "vat_to_pay": 10.0},
		{"period": "2025 Q1", "end_date": "2025-03-31", "vat_to_pay": 30.0},
		{"period": "2025 Q2", "end_date": "2025-06-30", "vat_to_pay": 20.0},
		{"other": "no period"},
	} {
		_, err := s.SavePage(ctx, DatabaseVATDeclarations, p)
		require.NoError(t, err)
	}

	pages, err := s.QueryPages(ctx, DatabaseVATDeclarations,
		Filter{Property: "period", Contains: "2025"},
		Sort{Property: "end_date", Descending: true})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "2025 Q2", pages[0].Properties["period"])
	assert.Equal(t, "2025 Q1", pages[1].Properties["period"])

	pages, err = s.QueryPages(ctx, DatabaseVATDeclarations, Filter{}, Sort{Property: "vat_to_pay"})
	require.NoError(t, err)
	require.Len(t, pages, 4)
	assert.Equal(t, 10.0, pages[0].Properties["vat_to_pay"])
	assert.Equal(t, 20.0, pages[1].Properties["vat_to_pay"])
	assert.Equal(t, 30.0, pages[2].Properties["vat_to_pay"])
	assert.Equal(t, "no period", pages[3].Properties["other"])

	pages, err = s.QueryPages(ctx, DatabaseVATDeclarations, Filter{Property: "period", Equals: "2024 Q4"}, Sort{})
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	pages, err = s.QueryPages(ctx, "empty-db", Filter{}, Sort{})
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestBoltStore_RejectsInvalidRequests(t *testing.T) {
	s := openTestStore(t)

	_, err := s.SavePage(context.Background(), "", Properties{})
	assert.ErrorIs(t, err, ErrInvalidDatabase)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.QueryPages(ctx, DatabaseVATDeclarations, Filter{}, Sort{})
	assert.ErrorIs(t, err, context.Canceled)
}
