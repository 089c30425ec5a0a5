package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	billing "ixora-billpay/internal/billing/domain"
	"ixora-billpay/internal/portalapi"
)

// BillFetcher reads raw outstanding bill records from the backend.
type BillFetcher interface {
	OutstandingBills(ctx context.Context, module string, q portalapi.BillQuery) ([]json.RawMessage, error)
}

// SearchQuery selects outstanding bills of one module.
type SearchQuery struct {
	Source    billing.Source
	IC        string
	Reference string
}

// ErrEmptyQuery is returned when neither IC nor reference is given.
var ErrEmptyQuery = errors.New("billing: ic or reference required")

// SearchService looks up outstanding bills and normalizes them.
type SearchService struct {
	fetcher BillFetcher
	cache   *cache.Cache
	logger  *zap.Logger
}

// SearchOption configures the search service.
type SearchOption func(*SearchService)

// WithCacheTTL caches normalized results per query. Zero disables caching.
func WithCacheTTL(ttl time.Duration) SearchOption {
	return func(s *SearchService) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(logger *zap.Logger) SearchOption {
	return func(s *SearchService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearchService constructs a search service.
func NewSearchService(fetcher BillFetcher, opts ...SearchOption) (*SearchService, error) {
	if fetcher == nil {
		return nil, errors.New("billing search: nil fetcher")
	}
	s := &SearchService{fetcher: fetcher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search returns the normalized outstanding bills for one module. A
// single malformed record fails the whole lookup.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) ([]billing.SelectableBill, error) {
	if !q.Source.Valid() {
		return nil, billing.ErrUnknownSource
	}
	if q.IC == "" && q.Reference == "" {
		return nil, ErrEmptyQuery
	}
	key := cacheKey(q)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cloneBills(cached.([]billing.SelectableBill)), nil
		}
	}

	records, err := s.fetcher.OutstandingBills(ctx, string(q.Source), portalapi.BillQuery{IC: q.IC, Reference: q.Reference})
	if err != nil {
		return nil, fmt.Errorf("billing search %s: %w", q.Source, err)
	}
	bills := make([]billing.SelectableBill, 0, len(records))
	for i, raw := range records {
		bill, err := Normalize(q.Source, raw)
		if err != nil {
			s.logger.Warn("bill record rejected",
				zap.String("source", string(q.Source)),
				zap.Int("index", i),
				zap.Error(err))
			return nil, fmt.Errorf("billing search %s record %d: %w", q.Source, i, err)
		}
		bills = append(bills, bill)
	}
	if s.cache != nil {
		s.cache.SetDefault(key, cloneBills(bills))
	}
	return bills, nil
}

// SearchAll queries every billing module by IC concurrently and returns
// the results concatenated in module order.
func (s *SearchService) SearchAll(ctx context.Context, ic string) ([]billing.SelectableBill, error) {
	if ic == "" {
		return nil, ErrEmptyQuery
	}
	results := make([][]billing.SelectableBill, len(billing.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range billing.Sources {
		i, source := i, source
		g.Go(func() error {
			bills, err := s.Search(gctx, SearchQuery{Source: source, IC: ic})
			if err != nil {
				return err
			}
			results[i] = bills
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []billing.SelectableBill
	for _, bills := range results {
		all = append(all, bills...)
	}
	return all, nil
}

// Invalidate drops every cached result.
func (s *SearchService) Invalidate() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func cacheKey(q SearchQuery) string {
	return string(q.Source) + "|" + q.IC + "|" + q.Reference
}

func cloneBills(bills []billing.SelectableBill) []billing.SelectableBill {
	out := make([]billing.SelectableBill, len(bills))
	copy(out, bills)
	return out
}
