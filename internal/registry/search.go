package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
)

// Sort keys accepted by Search.
const (
	SortByID             = "id"
	SortByCreatedAt      = "created_at"
	SortByTotalProfit    = "total_profit"
	SortByExecutionCount = "execution_count"
)

// Page size limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Criteria filters, orders and pages a strategy search. Zero values mean
// "no filter".
type Criteria struct {
	Creator      *common.Address
	Type         domain.StrategyType
	LiveOnly     bool
	Term         string // case-insensitive match on name or description
	MinProfitUSD *decimal.Decimal

	SortBy string
	Desc   bool

	Offset int
	Limit  int
}

// Page is one page of search results.
type Page struct {
	Items []*domain.Strategy
	Total int // matches before paging
}

// Search returns strategies matching c.
func (r *Registry) Search(ctx context.Context, c Criteria) (Page, error) {
	if c.Type != "" && !c.Type.IsValid() {
		return Page{}, domain.Precondition("search strategies", fmt.Errorf("%w: %q", ErrInvalidType, c.Type))
	}
	less, err := sortFunc(c.SortBy)
	if err != nil {
		return Page{}, domain.Precondition("search strategies", err)
	}

	all, err := r.strategies.List(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("search strategies: %w", err)
	}

	now := r.now().Unix()
	term := strings.ToLower(strings.TrimSpace(c.Term))
	matched := make([]*domain.Strategy, 0, len(all))
	for _, s := range all {
		if c.Creator != nil && s.Creator != *c.Creator {
			continue
		}
		if c.Type != "" && s.Type != c.Type {
			continue
		}
		if c.LiveOnly && !s.IsLive(now) {
			continue
		}
		if c.MinProfitUSD != nil && s.TotalProfitUSD.LessThan(*c.MinProfitUSD) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(s.Name), term) &&
			!strings.Contains(strings.ToLower(s.Description), term) {
			continue
		}
		matched = append(matched, s)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if c.Desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	limit := c.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := c.Offset
	if offset < 0 {
		offset = 0
	}

	page := Page{Total: len(matched), Items: []*domain.Strategy{}}
	if offset >= len(matched) {
		return page, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[offset:end]
	return page, nil
}

func sortFunc(key string) (func(a, b *domain.Strategy) bool, error) {
	switch key {
	case "", SortByID:
		return func(a, b *domain.Strategy) bool { return a.ID < b.ID }, nil
	case SortByCreatedAt:
		return func(a, b *domain.Strategy) bool {
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt < b.CreatedAt
			}
			return a.ID < b.ID
		}, nil
	case SortByTotalProfit:
		return func(a, b *domain.Strategy) bool {
			if c := a.TotalProfitUSD.Cmp(b.TotalProfitUSD); c != 0 {
				return c < 0
			}
			return a.ID < b.ID
		}, nil
	case SortByExecutionCount:
		return func(a, b *domain.Strategy) bool {
			if a.ExecutionCount != b.ExecutionCount {
				return a.ExecutionCount < b.ExecutionCount
			}
			return a.ID < b.ID
		}, nil
	}
	return nil, fmt.Errorf("unknown sort key %q", key)
}
