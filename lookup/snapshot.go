package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/platecheck/lookup/internal/fetch"
)

// snapshotPlate is one entry in the legacy bulk snapshot.
type snapshotPlate struct {
	LicensePlate string           `json:"license_plate"`
	Records      []snapshotRecord `json:"records"`
}

// snapshotRecord is one observation inside a snapshot entry. The date parts
// arrive as strings or numbers depending on snapshot vintage.
type snapshotRecord struct {
	Month       any    `json:"month"`
	Day         any    `json:"day"`
	Year        any    `json:"year"`
	Datestamp   string `json:"datestamp"`
	Address     string `json:"address"`
	VehicleMake string `json:"vehicle_make"`
	Comments    string `json:"comments"`
}

// snapshotCache holds the snapshot plate list behind a wall-clock TTL.
type snapshotCache struct {
	client *fetch.Client
	url    string
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	loaded    bool
	have      bool
	plates    []snapshotPlate
	fetchedAt int64 // unix seconds
}

type snapshotCacheFileLayout struct {
	CacheTime *int64          `json:"cache_time"`
	Plates    []snapshotPlate `json:"plates"`
}

// check resolves a plate against the snapshot source, refetching when the
// cached copy is older than the TTL.
func (c *snapshotCache) check(ctx context.Context, plate string) LookupResult {
	if c.url == "" {
		return LookupResult{Error: "snapshot URL not configured"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		var disk snapshotCacheFileLayout
		if loadCache(c.dir, snapshotCacheFile, &disk) && disk.CacheTime != nil && disk.Plates != nil {
			c.plates = disk.Plates
			c.fetchedAt = *disk.CacheTime
			c.have = true
			c.logger.Info("loaded snapshot plate cache from disk", "plates", len(c.plates))
		}
	}

	now := c.now()
	if c.have && now.Unix()-c.fetchedAt < int64(c.ttl.Seconds()) {
		return c.search(plate)
	}

	body, err := c.client.Do(ctx, http.MethodGet, c.url, nil, nil)
	if err != nil {
		if c.have {
			c.logger.Warn("snapshot fetch failed, serving stale cache", "error", err)
			return c.search(plate)
		}
		return LookupResult{Error: fetch.Reason(err)}
	}

	var data struct {
		Plates []snapshotPlate `json:"plates"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		if c.have {
			c.logger.Warn("invalid snapshot JSON, serving stale cache", "error", err)
			return c.search(plate)
		}
		return LookupResult{Error: "invalid snapshot JSON"}
	}

	c.plates = data.Plates
	c.fetchedAt = now.Unix()
	c.have = true
	if err := saveCache(c.dir, snapshotCacheFile, map[string]any{
		"cache_time": c.fetchedAt,
		"plates":     c.plates,
	}); err != nil {
		c.logger.Warn("failed to persist snapshot plate cache", "error", err)
	}

	return c.search(plate)
}

// search finds the first case-insensitive exact plate match and shapes all
// of its records into sightings. Caller holds mu.
func (c *snapshotCache) search(plate string) LookupResult {
	upper := strings.ToUpper(plate)
	for _, entry := range c.plates {
		if strings.ToUpper(entry.LicensePlate) != upper {
			continue
		}
		sightings := make([]Sighting, 0, len(entry.Records))
		for _, rec := range entry.Records {
			sightings = append(sightings, Sighting{
				Date:        formatSnapshotDate(rec),
				Location:    rec.Address,
				Vehicle:     rec.VehicleMake,
				Description: rec.Comments,
				Time:        rec.Datestamp,
			})
		}
		return LookupResult{
			Found:       true,
			MatchCount:  1,
			RecordCount: len(sightings),
			Sightings:   sightings,
		}
	}
	return LookupResult{}
}

// formatSnapshotDate builds "Month Day, Year" from the split date fields,
// falling back to the raw datestamp when any part is missing.
func formatSnapshotDate(rec snapshotRecord) string {
	month := jsonText(rec.Month)
	day := jsonText(rec.Day)
	year := jsonText(rec.Year)
	if month != "" && day != "" && year != "" {
		return fmt.Sprintf("%s %s, %s", month, day, year)
	}
	return rec.Datestamp
}

// jsonText renders a decoded JSON scalar as text. Numbers drop a trailing
// ".0"; anything non-scalar is treated as absent.
func jsonText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// clear drops the in-memory snapshot. The disk file is kept and revalidated
// against the TTL on the next check.
func (c *snapshotCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.have = false
	c.plates = nil
	c.fetchedAt = 0
}
