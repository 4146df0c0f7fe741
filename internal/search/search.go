// Package search indexes saved inspection responses and answers queries
// against Meilisearch when it is available, falling back to PostgreSQL
// full-text search otherwise.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ResponseID string `json:"responseId"`
	Title      string `json:"title"`
	CompanyID  string `json:"companyId"`
	Snippet    string `json:"snippet"`
}

// Query describes a search request over saved responses.
type Query struct {
	Text      string
	CompanyID string // empty = all companies
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ResponseRecord is the indexable projection of one saved response: header
// fields plus the concatenated answer text of its items.
type ResponseRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CompanyID string `json:"companyId"`
	Notes     string `json:"notes"`
	Answers   string `json:"answers"`
}
