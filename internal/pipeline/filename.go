package pipeline

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFilename transliterates a filename to plain ASCII for the legacy
// Content-Disposition filename parameter: diacritics are stripped to their
// base letters, anything else non-ASCII is dropped.
func asciiFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	for _, r := range stripped {
		if r >= 0x20 && r < 0x7f && r != '"' && r != '\\' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// contentDisposition builds the dual-form attachment header: a quoted ASCII
// fallback plus the RFC 5987 UTF-8 percent-encoded form.
func contentDisposition(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		asciiFilename(filename), url.PathEscape(filename))
}

// substitutePattern fills a naming pattern's {userId} and {tweetId}
// placeholders.
func substitutePattern(pattern, userID, postID string) string {
	return strings.NewReplacer("{userId}", userID, "{tweetId}", postID).Replace(pattern)
}
