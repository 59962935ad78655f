package scrape

// ResultItem is one normalized search hit. URL is null when the row carried
// no usable title link.
type ResultItem struct {
	Title    string  `json:"title"`
	URL      *string `json:"url"`
	Citation string  `json:"citation"`
	Summary  string  `json:"summary"`
}

// DocumentContent is the full extraction of a single document page.
type DocumentContent struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	HTML  string `json:"html"`
}

// listExtraction is what the in-page list script returns. ConfirmedEmpty is
// true when the portal's "no results" marker was present; a missing marker
// with zero rows is indistinguishable from a selector mismatch, so both
// surface as an empty Items slice.
type listExtraction struct {
	Items          []ResultItem `json:"items"`
	ConfirmedEmpty bool         `json:"confirmedEmpty"`
}

// docExtraction is what the in-page document script returns, plus the raw
// page markup captured for the readability fallback.
type docExtraction struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	HTML  string `json:"html"`
}
