// Package history provides the paginated, read-only view over finalized
// tarot readings.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/models"
)

// Pagination defaults.
const (
	DefaultPerPage = 10
	MaxPerPage     = 50
)

// ErrNotFound is returned by a Store when the requested record does not exist.
var ErrNotFound = errors.New("history: record not found")

// Store is the backing history collaborator. ListReadings returns records
// newest first together with the total count for the user.
type Store interface {
	ListReadings(ctx context.Context, userID string, offset, limit int) ([]models.TarotReading, int64, error)
	GetReading(ctx context.Context, userID string, id uint) (*models.TarotReading, error)
}

// Page is one page of history, newest first.
type Page struct {
	Records     []models.TarotReading `json:"records"`
	CurrentPage int                   `json:"current_page"`
	TotalPages  int                   `json:"total_pages"`
	PerPage     int                   `json:"per_page"`
	Total       int64                 `json:"total"`
}

// Reader serves history pages. It never mutates the store.
type Reader struct {
	store      Store
	perPage    int
	maxPerPage int
}

// ReaderOpts holds parameters for creating a Reader.
type ReaderOpts struct {
	Store      Store
	PerPage    int // defaults to DefaultPerPage
	MaxPerPage int // defaults to MaxPerPage
}

// NewReader creates a Reader.
func NewReader(opts ReaderOpts) (*Reader, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("history: store is required")
	}
	r := &Reader{store: opts.Store, perPage: opts.PerPage, maxPerPage: opts.MaxPerPage}
	if r.maxPerPage <= 0 {
		r.maxPerPage = MaxPerPage
	}
	if r.perPage <= 0 {
		r.perPage = DefaultPerPage
	}
	if r.perPage > r.maxPerPage {
		r.perPage = r.maxPerPage
	}
	return r, nil
}

// List returns the requested page of a user's readings. page is clamped to
// at least 1; perPage <= 0 selects the default and is capped at the maximum.
// A page past the end returns no records but keeps CurrentPage as asked.
func (r *Reader) List(ctx context.Context, userID string, page, perPage int) (*Page, error) {
	if userID == "" {
		return nil, flow.Validation("history.list", "user is required")
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = r.perPage
	}
	if perPage > r.maxPerPage {
		perPage = r.maxPerPage
	}

	records, total, err := r.store.ListReadings(ctx, userID, (page-1)*perPage, perPage)
	if err != nil {
		return nil, flow.IO("history.list", "could not load history", err)
	}
	if records == nil {
		records = []models.TarotReading{}
	}
	return &Page{
		Records:     records,
		CurrentPage: page,
		TotalPages:  totalPages(total, perPage),
		PerPage:     perPage,
		Total:       total,
	}, nil
}

// Get returns a single reading. Unknown ids yield a KindNotFound error so
// callers can render a "no longer available" state.
func (r *Reader) Get(ctx context.Context, userID string, id uint) (*models.TarotReading, error) {
	rec, err := r.store.GetReading(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, flow.NotFound("history.get", "reading %d is no longer available", id)
		}
		return nil, flow.IO("history.get", "could not load reading", err)
	}
	return rec, nil
}

// Merge returns a copy of page with fresh prepended when page is the first
// page and does not already contain it. This covers the window where a
// just-written record is not yet visible from the store. The page keeps its
// size and the store's order is otherwise untouched.
func Merge(page *Page, fresh *models.TarotReading) *Page {
	if page == nil || fresh == nil || page.CurrentPage != 1 {
		return page
	}
	for _, rec := range page.Records {
		if rec.ID == fresh.ID {
			return page
		}
	}
	merged := *page
	merged.Records = append([]models.TarotReading{*fresh}, page.Records...)
	if merged.PerPage > 0 && len(merged.Records) > merged.PerPage {
		merged.Records = merged.Records[:merged.PerPage]
	}
	merged.Total = page.Total + 1
	merged.TotalPages = totalPages(merged.Total, merged.PerPage)
	return &merged
}

func totalPages(total int64, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
