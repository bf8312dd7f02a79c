// Package catalog implements the upstream listing catalog client.
//
// The catalog exposes three read endpoints:
//
//	GET /change_id?date=YYYY-MM-DD   first change id recorded on a date
//	GET /changes?change_id=N         one page of the incremental feed
//	GET /offers?page=N               one page of the full snapshot
//
// Requests authenticate with an api_key query parameter. Each endpoint
// family has its own request interval; 429 responses surface as
// domain.RateLimitError carrying the server's Retry-After.
package catalog
