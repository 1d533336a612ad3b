// File: internal/orchestrator/state.go
package orchestrator

import "github.com/xkilldash9x/sift/api/schemas"

// UnknownTotal marks a result count the first page did not reveal.
const UnknownTotal = -1

// CrawlState is the progress of one crawl. It is owned by the crawl loop and passed
// by value to everything that only reads it.
type CrawlState struct {
	CurrentPage       int
	Records           []schemas.ProfileRecord
	TotalAvailable    int
	TotalToExtract    int
	ConsecutiveErrors int
	Cancelled         bool
	Reason            string

	totalsKnown bool
}

// newState seeds totals with the page and platform bounds until the first page reports its result count.
func newState(maxPages, resultsPerPage, platformCap int) CrawlState {
	return CrawlState{
		TotalAvailable: UnknownTotal,
		TotalToExtract: TotalToExtract(UnknownTotal, maxPages, resultsPerPage, platformCap),
	}
}

// TotalToExtract is min(totalAvailable, maxPages*resultsPerPage, platformCap). A negative
// totalAvailable is unknown and places no bound.
func TotalToExtract(totalAvailable, maxPages, resultsPerPage, platformCap int) int {
	// Compare before multiplying so huge page counts cannot overflow.
	total := platformCap
	switch {
	case maxPages <= 0 || resultsPerPage <= 0:
		total = 0
	case maxPages <= platformCap/resultsPerPage:
		total = maxPages * resultsPerPage
	}
	if totalAvailable >= 0 && totalAvailable < total {
		total = totalAvailable
	}
	if total < 0 {
		return 0
	}
	return total
}

// Progress is min(100, floor(100*scraped/totalToExtract)); an empty target reads as done.
func (s CrawlState) Progress() int {
	if s.TotalToExtract <= 0 {
		return 100
	}
	p := 100 * len(s.Records) / s.TotalToExtract
	if p > 100 {
		return 100
	}
	return p
}

// Complete reports whether the extraction target has been reached.
func (s CrawlState) Complete() bool {
	return s.totalsKnown && len(s.Records) >= s.TotalToExtract
}
