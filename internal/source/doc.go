// Package source adapts the external services photos are discovered in and
// downloaded from: a Google Drive folder per unit and a catalogue
// spreadsheet linking unit keys to those folders.
//
// Drive and Sheets share a client built from a service-account credentials
// file. Every call passes through a token-bucket rate limiter, and
// transient failures (429, 5xx, network errors) are retried with backoff.
// Not-found and permission errors are returned at once as ErrNotFound or
// the underlying API error.
package source
