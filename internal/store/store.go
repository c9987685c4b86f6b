// Package store persists schemaless pages grouped in named databases.
//
// A page is a flat property map, much like a row of a document database.
// Extraction records, VAT declarations and archived declarations are each
// kept in their own database.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Database ids used by docvat.
const (
	DatabaseExtractionRecords = "extraction-records"
	DatabaseVATDeclarations   = "vat-declarations"
	DatabaseVATArchive        = "vat-archive"
)

var (
	// ErrNotFound is returned when a page id does not exist.
	ErrNotFound = errors.New("page not found")

	// ErrInvalidDatabase is returned for an empty database id.
	ErrInvalidDatabase = errors.New("invalid database id")
)

// Properties holds page values. After a round trip through a Store,
// numbers decode as float64.
type Properties map[string]any

// Page is a stored property map.
type Page struct {
	ID         string     `json:"id"`
	DatabaseID string     `json:"database_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Properties Properties `json:"properties"`
}

// Filter selects pages by one property. The zero Filter matches every page.
type Filter struct {
	Property string
	// Contains matches when the property, rendered as text, contains it.
	Contains string
	// Equals matches when the property, rendered as text, equals it.
	Equals string
}

// Sort orders query results by one property. The zero Sort keeps
// creation order.
type Sort struct {
	Property   string
	Descending bool
}

// Store is the persistence port.
type Store interface {
	SavePage(ctx context.Context, databaseID string, props Properties) (string, error)
	GetPage(ctx context.Context, databaseID, id string) (*Page, error)
	QueryPages(ctx context.Context, databaseID string, filter Filter, sort Sort) ([]Page, error)
	// UpdatePage replaces the listed properties and keeps the others.
	UpdatePage(ctx context.Context, databaseID, id string, props Properties) error
}

// Matches reports whether p passes the filter.
func (f Filter) Matches(p Page) bool {
	if f.Property == "" {
		return true
	}
	value, ok := p.Properties[f.Property]
	if !ok || value == nil {
		return false
	}

	text := fmt.Sprint(value)
	if f.Equals != "" && text != f.Equals {
		return false
	}
	if f.Contains != "" && !strings.Contains(text, f.Contains) {
		return false
	}
	return true
}

// Apply sorts pages in place. Numbers compare numerically, everything else
// as text; pages lacking the property sort last.
func (s Sort) Apply(pages []Page) {
	if s.Property == "" {
		sort.SliceStable(pages, func(i, j int) bool {
			return pages[i].CreatedAt.Before(pages[j].CreatedAt)
		})
		return
	}

	sort.SliceStable(pages, func(i, j int) bool {
		a, aok := pages[i].Properties[s.Property]
		b, bok := pages[j].Properties[s.Property]
		if !aok || !bok {
			return aok && !bok
		}
		cmp := compareValues(a, b)
		if s.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareValues(a, b any) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
