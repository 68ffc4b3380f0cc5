// Package storage writes processed images to canonical storage and returns
// the URL galleries use to render them.
//
// Two backends exist: Local writes files atomically under a directory that a
// web server exposes at a public base URL, and S3 uploads to a bucket on AWS
// or any S3-compatible server. Objects are keyed by Key, so retrying an item
// overwrites its previous upload instead of leaving orphans.
package storage
