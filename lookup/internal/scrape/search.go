// Package scrape parses the plate tracker's HTML. The search results page is
// heavily malformed (unclosed tags, bare attribute values), so it is parsed
// with regular expressions over the raw markup; the detail page is close
// enough to well-formed for a tolerant DOM parse.
package scrape

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Sighting is one parsed observation. The lookup service converts these to
// its public result type.
type Sighting struct {
	Date        string
	Location    string
	Vehicle     string
	Description string
	Time        string
}

var (
	// Date marker that opens each result block. Quoting and whitespace vary
	// across upstream renders.
	dateMarkerRe = regexp.MustCompile(`(?i)<font\s+style=["']?font-size:9pt;?["']?\s+color=["']?#c0c0c0["']?\s*>`)

	// First run of text content in a block.
	dateTextRe = regexp.MustCompile(`^\s*([^<\n]+)`)

	// Location text follows the map marker image.
	locationRe = regexp.MustCompile(`(?i)<img\s+src=["']?mapmarker\.png["']?[^>]*>\s*(.+?)(?:<|\n)`)

	// Plain 9pt font blocks (no color attribute) hold free-text descriptions.
	descRe = regexp.MustCompile(`(?i)<font\s+style=["']?font-size:9pt;?["']?\s*>\s*([^<\n]+)`)

	resultRe      = regexp.MustCompile(`<!--RESULT:(\d+)-->`)
	moreRecordsRe = regexp.MustCompile(`(?i)(\d+)\s+more records`)
)

// SearchResults extracts sightings from a search results page. Each block
// between date markers contributes one sighting; blocks whose leading text is
// empty are dropped.
func SearchResults(page string) []Sighting {
	blocks := dateMarkerRe.Split(page, -1)
	if len(blocks) < 2 {
		return nil
	}

	var sightings []Sighting
	for _, block := range blocks[1:] {
		// Everything past the result marker is footer, not block content.
		if i := strings.Index(block, "<!--RESULT:"); i >= 0 {
			block = block[:i]
		}

		var date string
		if m := dateTextRe.FindStringSubmatch(block); m != nil {
			date = clean(m[1])
		}

		var location string
		if m := locationRe.FindStringSubmatch(block); m != nil {
			location = clean(m[1])
		}

		// Last qualifying 9pt block wins: earlier ones repeat the location
		// or carry the "N more records" hint.
		var description string
		for _, m := range descRe.FindAllStringSubmatch(block, -1) {
			text := clean(m[1])
			lower := strings.ToLower(text)
			if text == "" || strings.Contains(lower, "more records") ||
				strings.Contains(lower, "mapmarker") || text == location {
				continue
			}
			description = text
		}

		if date == "" {
			continue
		}
		sightings = append(sightings, Sighting{
			Date:        date,
			Location:    location,
			Description: description,
		})
	}
	return sightings
}

// MatchCount reads the hidden result-count marker. ok is false when the page
// carries no marker at all.
func MatchCount(page string) (n int, ok bool) {
	m := resultRe.FindStringSubmatch(page)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// RecordCount computes the total record count for a results page showing
// shown sightings. "N more records" means N beyond the displayed ones, so
// the total is N+shown; without the hint the shown count is the total.
func RecordCount(page string, shown int) int {
	m := moreRecordsRe.FindStringSubmatch(page)
	if m == nil {
		return shown
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return shown
	}
	return n + shown
}

func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
