package idea

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// MaxTitleLength is the longest title accepted, in characters.
const MaxTitleLength = 500

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate checks a create payload and returns every rule it violates.
// The result is empty for a valid payload and its order is stable.
func Validate(payload map[string]any) []string {
	return validate(payload, true)
}

// ValidatePatch checks an update payload. Fields that are absent are not
// checked; title is not required.
func ValidatePatch(payload map[string]any) []string {
	return validate(payload, false)
}

func validate(payload map[string]any, requireTitle bool) []string {
	var errs []string

	if v, ok := payload["title"]; ok && v != nil {
		errs = append(errs, checkTitle(v)...)
	} else if requireTitle || ok {
		errs = append(errs, "title is required")
	}

	if v, ok := payload["description"]; ok && v != nil {
		if _, isStr := v.(string); !isStr {
			errs = append(errs, "description must be a string")
		}
	}

	if v, ok := payload["status"]; ok {
		if s, isStr := v.(string); !isStr || !models.ValidStatus(s) {
			errs = append(errs, fmt.Sprintf("status must be one of: %s", strings.Join(models.Statuses, ", ")))
		}
	}

	if v, ok := payload["tags"]; ok {
		if !isStringArray(v) {
			errs = append(errs, "tags must be an array of strings")
		}
	}

	if v, ok := payload["color"]; ok {
		if s, isStr := v.(string); !isStr || !colorPattern.MatchString(s) {
			errs = append(errs, "color must be a hex color like #6366f1")
		}
	}

	if v, ok := payload["image_url"]; ok && v != nil {
		if _, isStr := v.(string); !isStr {
			errs = append(errs, "image_url must be a string")
		}
	}

	return errs
}

func checkTitle(v any) []string {
	s, ok := v.(string)
	if !ok {
		return []string{"title must be a string"}
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return []string{"title must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return []string{fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
	}
	return nil
}

func isStringArray(v any) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	for _, el := range arr {
		if _, isStr := el.(string); !isStr {
			return false
		}
	}
	return true
}
