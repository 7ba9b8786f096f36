// Package lookup implements a multi-source license plate lookup engine:
// a scraped primary tracker, an encrypted paginated aggregator feed, and a
// legacy bulk snapshot, unified behind one result type. Sources degrade
// independently — missing configuration or a dead upstream disables a
// source, it never takes the service down.
package lookup

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/platecheck/guard"
	"github.com/hazyhaar/platecheck/history"
	"github.com/hazyhaar/platecheck/lookup/internal/fetch"
	"github.com/hazyhaar/platecheck/lookup/internal/pages"
	"github.com/hazyhaar/platecheck/lookup/internal/scrape"
)

// History source labels.
const (
	SourcePrimary    = "primary"
	SourceDetails    = "details"
	SourceAggregated = "aggregated"
)

// errInvalidPlate is the user-facing message for rejected plate input.
const errInvalidPlate = "invalid plate identifier"

// Service is the lookup engine. All entry points are safe for concurrent
// use.
type Service struct {
	cfg       Config
	logger    *slog.Logger
	client    *fetch.Client
	paginated *paginatedCache
	snapshot  *snapshotCache
	hist      *history.Store
}

type options struct {
	hist         *history.Store
	now          func() time.Time
	urlValidator func(string) error
}

// Option customises New.
type Option func(*options)

// WithHistory attaches a lookup audit log. Every valid lookup records one
// row per entry point.
func WithHistory(h *history.Store) Option {
	return func(o *options) { o.hist = h }
}

// WithClock overrides the wall clock used for snapshot TTL decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithURLValidator overrides the URL safety check applied before every
// upstream request.
func WithURLValidator(v func(string) error) Option {
	return func(o *options) { o.urlValidator = v }
}

// New builds a Service from cfg. A nil logger means slog.Default().
func New(cfg Config, logger *slog.Logger, opts ...Option) *Service {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	o := options{now: time.Now, urlValidator: guard.ValidateURL}
	for _, opt := range opts {
		opt(&o)
	}

	client := fetch.New(fetch.Config{
		Timeout:      cfg.Timeout,
		RetryDelay:   cfg.RetryDelay,
		UserAgent:    cfg.UserAgent,
		URLValidator: o.urlValidator,
	})

	return &Service{
		cfg:    cfg,
		logger: logger,
		client: client,
		hist:   o.hist,
		paginated: &paginatedCache{
			fetcher: &pages.Fetcher{
				Client:     client,
				BaseURL:    cfg.DataURL,
				Passphrase: cfg.Passphrase,
				Limit:      cfg.MaxConcurrentPages,
				Logger:     logger,
			},
			dir:    cfg.CacheDir,
			logger: logger,
		},
		snapshot: &snapshotCache{
			client: client,
			url:    cfg.SnapshotURL,
			dir:    cfg.CacheDir,
			ttl:    cfg.SnapshotTTL,
			now:    o.now,
			logger: logger,
		},
	}
}

// CheckPrimary searches the primary tracker for a plate. Found keys on the
// page's hidden result marker, not on how many sightings parsed.
func (s *Service) CheckPrimary(ctx context.Context, plate string) LookupResult {
	start := time.Now()
	p, err := guard.ValidatePlate(plate)
	if err != nil {
		return LookupResult{Error: errInvalidPlate}
	}

	res := s.checkPrimary(ctx, p)
	s.record(ctx, p, SourcePrimary, res, start)
	return res
}

func (s *Service) checkPrimary(ctx context.Context, plate string) LookupResult {
	body, err := s.client.Do(ctx, http.MethodPost, s.cfg.TrackerURL,
		url.Values{"search": {"1"}, "keywords": {plate}}, nil)
	if err != nil {
		s.logger.Warn("primary search failed", "plate", plate, "error", err)
		return LookupResult{Error: fetch.Reason(err)}
	}

	page := string(body)
	n, ok := scrape.MatchCount(page)
	if !ok || n == 0 {
		return LookupResult{}
	}

	sightings := toSightings(scrape.SearchResults(page))
	return LookupResult{
		Found:       true,
		MatchCount:  n,
		RecordCount: scrape.RecordCount(page, len(sightings)),
		Sightings:   sightings,
	}
}

// FetchPrimaryDetails retrieves the tracker's detail page for a plate.
// Found means at least one full record parsed.
func (s *Service) FetchPrimaryDetails(ctx context.Context, plate string) LookupResult {
	start := time.Now()
	p, err := guard.ValidatePlate(plate)
	if err != nil {
		return LookupResult{Error: errInvalidPlate}
	}

	res := s.fetchPrimaryDetails(ctx, p)
	s.record(ctx, p, SourceDetails, res, start)
	return res
}

func (s *Service) fetchPrimaryDetails(ctx context.Context, plate string) LookupResult {
	body, err := s.client.Do(ctx, http.MethodGet, s.cfg.TrackerURL,
		nil, url.Values{"plate": {plate}})
	if err != nil {
		s.logger.Warn("detail fetch failed", "plate", plate, "error", err)
		return LookupResult{Error: fetch.Reason(err)}
	}

	sightings := toSightings(scrape.DetailPage(string(body)))
	return LookupResult{
		Found:     len(sightings) > 0,
		Sightings: sightings,
	}
}

// CheckAggregated queries the paginated and snapshot sources concurrently
// and merges their answers. Both sub-lookups always run to completion;
// neither cancels the other.
func (s *Service) CheckAggregated(ctx context.Context, plate string) LookupResult {
	start := time.Now()
	p, err := guard.ValidatePlate(plate)
	if err != nil {
		return LookupResult{Error: errInvalidPlate}
	}

	var paginated, snapshot LookupResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		paginated = s.paginated.check(ctx, p)
	}()
	go func() {
		defer wg.Done()
		snapshot = s.snapshot.check(ctx, p)
	}()
	wg.Wait()

	res := mergeResults(paginated, snapshot)
	s.record(ctx, p, SourceAggregated, res, start)
	return res
}

// ClearCaches drops both in-memory caches. Disk files stay in place and are
// revalidated (version token, TTL) on the next lookup.
func (s *Service) ClearCaches() {
	s.paginated.clear()
	s.snapshot.clear()
	s.logger.Info("lookup caches cleared")
}

func (s *Service) record(ctx context.Context, plate, source string, res LookupResult, start time.Time) {
	if s.hist == nil {
		return
	}
	s.hist.Record(ctx, history.Entry{
		Plate:      plate,
		Source:     source,
		Found:      res.Found,
		MatchCount: res.MatchCount,
		Error:      res.Error,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

func toSightings(in []scrape.Sighting) []Sighting {
	if len(in) == 0 {
		return nil
	}
	out := make([]Sighting, len(in))
	for i, s := range in {
		out[i] = Sighting(s)
	}
	return out
}
