package audit

import (
	"context"
	"fmt"
)

// Lister is the repository slice the history service needs.
type Lister interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]Entry, error)
}

// PagingInfo describes the window of a history result.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles one page of history with paging information.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}

// Service coordinates audit history reads.
type Service struct {
	repo Lister
}

// NewService builds a history service.
func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

// HistoryByUser returns one page of a subject's audit history, newest first.
// Fetches one row beyond the page size to detect whether a next page exists.
func (s *Service) HistoryByUser(ctx context.Context, userID int64, page, pageSize int) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	entries, err := s.repo.ListByUser(ctx, userID, int32(pageSize+1), int32(offset))
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Paging: paging}, nil
}

const exportBatchSize = 500

// ExportByUser returns a subject's complete history, newest first, batching
// the reads so one oversized account does not hold a huge single query.
func (s *Service) ExportByUser(ctx context.Context, userID int64) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	var out []Entry
	for offset := int32(0); ; offset += exportBatchSize {
		batch, err := s.repo.ListByUser(ctx, userID, exportBatchSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < exportBatchSize {
			break
		}
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}
