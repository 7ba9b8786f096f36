package lookup

import "strings"

// mergeResults combines the paginated and snapshot sub-results into one.
//
// Counts add, sightings concatenate paginated-first, status prefers the
// paginated source. Sub-errors are reported only when neither source found
// the plate: a match from one source makes the other's failure invisible.
func mergeResults(paginated, snapshot LookupResult) LookupResult {
	var errs []string
	if paginated.Error != "" {
		errs = append(errs, "paginated: "+paginated.Error)
	}
	if snapshot.Error != "" {
		errs = append(errs, "stopice: "+snapshot.Error)
	}

	if !paginated.Found && !snapshot.Found {
		return LookupResult{Error: strings.Join(errs, "; ")}
	}

	var merged LookupResult
	merged.Found = true
	if paginated.Found {
		merged.Sightings = append(merged.Sightings, paginated.Sightings...)
		merged.MatchCount += paginated.MatchCount
		merged.RecordCount += paginated.RecordCount
	}
	if snapshot.Found {
		merged.Sightings = append(merged.Sightings, snapshot.Sightings...)
		merged.MatchCount += snapshot.MatchCount
		merged.RecordCount += snapshot.RecordCount
	}

	merged.Status = paginated.Status
	if merged.Status == "" {
		merged.Status = snapshot.Status
	}
	return merged
}
