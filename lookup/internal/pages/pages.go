// Package pages downloads and decrypts the aggregator's paginated plate
// data. Pages are independent: one bad page costs its own records only.
package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/platecheck/lookup/internal/fetch"
	"github.com/hazyhaar/platecheck/lookup/internal/pagecrypt"
)

// Fields is the per-plate payload inside a record. Key names are fixed by
// the publisher, spaces included.
type Fields struct {
	PlateID            string   `json:"Plate ID"`
	Plate              string   `json:"Plate"`
	ReportsCount       int      `json:"Reports Count"`
	PlateIssuer        string   `json:"Plate Issuer"`
	Tags               string   `json:"Tags"`
	UniqueVehicles     string   `json:"Unique vehicles"`
	PlateStatus        []string `json:"Plate Status"`
	LastSeen           string   `json:"Last Seen"`
	LastLocationSeen   string   `json:"Last Location Seen"`
	FirstSeen          string   `json:"First seen"`
	VehicleDescription string   `json:"Vehicle Description"`
}

// Record is one published plate record.
type Record struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime"`
	Fields      Fields `json:"fields"`
}

// Meta describes the current publication: which rotation to fetch, how many
// pages it has, and a version token that changes on every republish.
type Meta struct {
	Rotation int    `json:"rotation"`
	NumPages int    `json:"numPages"`
	Updated  string `json:"updated"`
}

type pagePlaintext struct {
	Records []Record `json:"records"`
}

// Fetcher downloads the aggregator's metadata and encrypted pages.
type Fetcher struct {
	Client     *fetch.Client
	BaseURL    string
	Passphrase string
	// Limit caps concurrent page downloads. Values below 1 mean 10.
	Limit  int
	Logger *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Meta fetches and parses the publication metadata. Absent rotation or page
// count fields default to 1.
func (f *Fetcher) Meta(ctx context.Context) (*Meta, error) {
	body, err := f.Client.Do(ctx, http.MethodGet, f.BaseURL+"/Plates_meta.json", nil, nil)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("invalid meta JSON")
	}
	if m.Rotation < 1 {
		m.Rotation = 1
	}
	if m.NumPages < 1 {
		m.NumPages = 1
	}
	return &m, nil
}

// FetchAll downloads pages 1..numPages of the given rotation concurrently,
// decrypts each, and returns the combined records plus one message per
// failed page. A missing passphrase short-circuits with a single
// configuration error and no network traffic. Record order across pages
// follows page number; callers must not rely on it.
func (f *Fetcher) FetchAll(ctx context.Context, rotation, numPages int) ([]Record, []string) {
	if f.Passphrase == "" {
		return nil, []string{"decryption passphrase not configured"}
	}

	limit := f.Limit
	if limit < 1 {
		limit = 10
	}

	pageRecords := make([][]Record, numPages)
	pageErrs := make([]string, numPages)

	var g errgroup.Group
	g.SetLimit(limit)
	for page := 1; page <= numPages; page++ {
		g.Go(func() error {
			records, err := f.fetchPage(ctx, rotation, page)
			if err != nil {
				pageErrs[page-1] = fmt.Sprintf("Page %d: %s", page, fetch.Reason(err))
				return nil
			}
			pageRecords[page-1] = records
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	var all []Record
	var errs []string
	for i := range pageRecords {
		all = append(all, pageRecords[i]...)
		if pageErrs[i] != "" {
			errs = append(errs, pageErrs[i])
		}
	}
	return all, errs
}

func (f *Fetcher) fetchPage(ctx context.Context, rotation, page int) ([]Record, error) {
	url := fmt.Sprintf("%s/Plates_r%d_p%d.json", f.BaseURL, rotation, page)
	body, err := f.Client.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}

	plaintext, err := pagecrypt.DecryptJSON(body, f.Passphrase)
	if err != nil {
		f.logger().Warn("page decryption failed", "page", page, "error", err)
		return nil, fmt.Errorf("decryption failed")
	}

	var data pagePlaintext
	if err := json.Unmarshal(plaintext, &data); err != nil {
		f.logger().Warn("page plaintext invalid", "page", page, "error", err)
		return nil, fmt.Errorf("decryption failed")
	}
	return data.Records, nil
}
