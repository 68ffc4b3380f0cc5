// Package media normalizes source photographs into the canonical stored form:
// EXIF orientation applied, width capped without ever upscaling, re-encoded
// as JPEG at a configured quality.
//
// Two backends produce the same result. Process is pure Go (imaging) and
// always available. ProcessVips uses libvips, which decodes with shrink-on-load
// and needs far less memory on large camera originals. NewTransformer picks
// libvips when it initializes and falls back to Process otherwise.
package media
