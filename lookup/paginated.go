package lookup

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/platecheck/lookup/internal/fetch"
	"github.com/hazyhaar/platecheck/lookup/internal/pages"
)

// paginatedCache holds the aggregator's full plate list, keyed by the
// publication's version token. The list is replaced wholesale on every
// refresh; searches only ever see a complete publication.
type paginatedCache struct {
	fetcher *pages.Fetcher
	dir     string
	logger  *slog.Logger

	mu      sync.Mutex
	loaded  bool // disk load attempted
	have    bool // records below are a valid publication
	records []pages.Record
	updated string // version token of the cached publication
}

type paginatedCacheFileLayout struct {
	Updated *string        `json:"updated"`
	Records []pages.Record `json:"records"`
}

// check resolves a plate against the paginated source, refreshing the cache
// when the publication's version token has moved.
func (c *paginatedCache) check(ctx context.Context, plate string) LookupResult {
	if c.fetcher.Passphrase == "" {
		return LookupResult{Error: "decryption passphrase not configured"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		var disk paginatedCacheFileLayout
		if loadCache(c.dir, paginatedCacheFile, &disk) && disk.Updated != nil && disk.Records != nil {
			c.records = disk.Records
			c.updated = *disk.Updated
			c.have = true
			c.logger.Info("loaded paginated plate cache from disk", "records", len(c.records))
		}
	}

	meta, err := c.fetcher.Meta(ctx)
	if err != nil {
		c.logger.Warn("meta fetch failed", "error", err)
		if c.have {
			c.logger.Info("serving stale paginated plate cache")
			return c.search(plate)
		}
		return LookupResult{Error: "meta: " + fetch.Reason(err)}
	}

	if c.have && meta.Updated == c.updated {
		return c.search(plate)
	}

	records, errs := c.fetcher.FetchAll(ctx, meta.Rotation, meta.NumPages)
	switch {
	case len(records) > 0:
		c.records = records
		c.updated = meta.Updated
		c.have = true
		if err := saveCache(c.dir, paginatedCacheFile, map[string]any{
			"updated": c.updated,
			"records": c.records,
		}); err != nil {
			c.logger.Warn("failed to persist paginated plate cache", "error", err)
		}
	case c.have:
		c.logger.Warn("all pages failed, serving stale cache", "errors", errs)
		return c.search(plate)
	default:
		if len(errs) > 3 {
			errs = errs[:3]
		}
		return LookupResult{Error: "pages: " + strings.Join(errs, "; ")}
	}

	return c.search(plate)
}

// search finds the first case-insensitive exact plate match. Caller holds mu.
func (c *paginatedCache) search(plate string) LookupResult {
	upper := strings.ToUpper(plate)
	for _, entry := range c.records {
		if strings.ToUpper(entry.Fields.Plate) != upper {
			continue
		}
		f := entry.Fields
		count := f.ReportsCount
		if count < 1 {
			count = 1
		}
		return LookupResult{
			Found:       true,
			MatchCount:  1,
			RecordCount: count,
			Sightings:   []Sighting{recordSighting(f)},
			Status:      strings.Join(f.PlateStatus, " / "),
		}
	}
	return LookupResult{}
}

// recordSighting shapes one aggregator record into a Sighting.
func recordSighting(f pages.Fields) Sighting {
	vehicle := f.VehicleDescription
	if vehicle == "" {
		vehicle = f.UniqueVehicles
	}

	var parts []string
	if len(f.PlateStatus) > 0 {
		parts = append(parts, strings.Join(f.PlateStatus, " / "))
	}
	if f.Tags != "" {
		parts = append(parts, f.Tags)
	}

	return Sighting{
		Date:        formatISODate(f.LastSeen),
		Location:    f.LastLocationSeen,
		Vehicle:     vehicle,
		Description: strings.Join(parts, " | "),
	}
}

// formatISODate renders an ISO 8601 timestamp as "Jan 02, 2006".
// Unparseable input passes through untouched: a raw timestamp beats a blank.
func formatISODate(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("Jan 02, 2006")
}

// clear drops the in-memory publication. The disk file is kept: the next
// check reloads it and revalidates its token against upstream.
func (c *paginatedCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.have = false
	c.records = nil
	c.updated = ""
}
