package mediatypes

import (
	"mime"
	"path"
	"strings"
)

// Format is an image encoding the transform can decode.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
)

// OutputFormat is the encoding every migrated photo is stored in.
const OutputFormat = FormatJPEG

var mimeFormats = map[string]Format{
	"image/jpeg":     FormatJPEG,
	"image/jpg":      FormatJPEG,
	"image/pjpeg":    FormatJPEG,
	"image/png":      FormatPNG,
	"image/gif":      FormatGIF,
	"image/webp":     FormatWebP,
	"image/bmp":      FormatBMP,
	"image/x-ms-bmp": FormatBMP,
	"image/tiff":     FormatTIFF,
}

var extFormats = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".jpe":  FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".webp": FormatWebP,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

var contentTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
}

// FromMIME returns the format of a MIME type such as "image/jpeg; q=1".
func FromMIME(mimeType string) Format {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mimeFormats[mediaType]
}

// FromName returns the format implied by a file name's extension.
func FromName(name string) Format {
	return extFormats[strings.ToLower(path.Ext(name))]
}

// Detect prefers the MIME type and falls back to the file name when the
// MIME type is missing or generic.
func Detect(mimeType, name string) Format {
	if f := FromMIME(mimeType); f != FormatUnknown {
		return f
	}
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		return FromName(name)
	}
	return FormatUnknown
}

// Supported reports whether the transform can decode f.
func (f Format) Supported() bool {
	_, ok := contentTypes[f]
	return ok
}

// ContentType returns the MIME type for f, or application/octet-stream.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}
