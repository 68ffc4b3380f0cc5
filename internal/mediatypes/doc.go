// Package mediatypes identifies the image formats the migrator can decode.
//
// Discovery uses [Detect] to skip source files the transform could not
// read (HEIC, SVG, RAW), so they never enter the queue only to fail later.
// [OutputFormat] names the encoding of every stored photo.
package mediatypes
