package source

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoReference means the text holds nothing that looks like a folder link.
	ErrNoReference = errors.New("no folder reference")

	// ErrMalformedReference means a folder link was present but carried no
	// usable identifier.
	ErrMalformedReference = errors.New("malformed folder reference")
)

var (
	folderURLPattern = regexp.MustCompile(`drive\.google\.com/(?:drive/)?(?:u/\d+/)?folders/([A-Za-z0-9_-]+)`)
	openURLPattern   = regexp.MustCompile(`drive\.google\.com/(?:open|folderview)\?(?:[^\s]*&)?id=([A-Za-z0-9_-]+)`)
	driveHostPattern = regexp.MustCompile(`drive\.google\.com/`)
	bareIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
)

// minFolderIDLength rejects short fragments a truncated link can leave behind.
const minFolderIDLength = 10

// ExtractFolderID pulls a folder identifier out of free text: a folder URL,
// an open?id= URL, or a bare identifier when that is the whole text. Links
// embedded in longer notes are found anywhere in the text.
func ExtractFolderID(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoReference
	}

	for _, p := range []*regexp.Regexp{folderURLPattern, openURLPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			if len(m[1]) < minFolderIDLength {
				return "", ErrMalformedReference
			}
			return m[1], nil
		}
	}

	if driveHostPattern.MatchString(text) {
		return "", ErrMalformedReference
	}
	if bareIDPattern.MatchString(text) {
		return text, nil
	}
	return "", ErrNoReference
}
