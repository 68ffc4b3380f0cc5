// Package middleware provides HTTP middleware for the admin API: one-line
// access logging through the component logger and Prometheus request
// metrics labelled by route template.
package middleware
