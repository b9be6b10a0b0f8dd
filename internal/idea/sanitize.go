package idea

import (
	"errors"
	"regexp"
	"strings"
)

// MaxContentBytes is the largest sanitized text accepted.
const MaxContentBytes = 10 * 1024 * 1024

// ErrContentTooLarge is returned when sanitized text exceeds MaxContentBytes.
var ErrContentTooLarge = errors.New("content too large")

var (
	scriptBlock   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	dangerousTags = regexp.MustCompile(`(?i)</?\s*(script|iframe|object|embed|form|input|textarea|button)\b[^>]*>`)
	dangerousURIs = regexp.MustCompile(`(?i)javascript:|data:`)
)

// Sanitize strips script blocks, dangerous tags and javascript:/data: URIs
// from text, then trims surrounding whitespace. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) (string, error) {
	if text == "" {
		return "", nil
	}

	// Removing one token can join its neighbours into another, e.g.
	// "javasjavascript:cript:". Repeat until nothing changes.
	for {
		next := scriptBlock.ReplaceAllString(text, "")
		next = dangerousTags.ReplaceAllString(next, "")
		next = dangerousURIs.ReplaceAllString(next, "")
		if next == text {
			break
		}
		text = next
	}

	if len(text) > MaxContentBytes {
		return "", ErrContentTooLarge
	}
	return strings.TrimSpace(text), nil
}
