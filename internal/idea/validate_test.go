package idea_test

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/ideahub/internal/idea"
	"github.com/stretchr/testify/assert"
)

func TestValidate_Valid(t *testing.T) {
	payload := map[string]any{
		"title":       "Solar kettle",
		"description": "Boil water with sunlight",
		"status":      "research",
		"tags":        []any{"energy", "kitchen"},
		"color":       "#AABBcc",
		"image_url":   "https://example.com/k.png",
	}
	assert.Empty(t, idea.Validate(payload))
}

func TestValidate_NullOptionalFields(t *testing.T) {
	payload := map[string]any{"title": "T", "description": nil, "image_url": nil}
	assert.Empty(t, idea.Validate(payload))
}

func TestValidate_Title(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"missing", map[string]any{}, "title is required"},
		{"null", map[string]any{"title": nil}, "title is required"},
		{"not a string", map[string]any{"title": 42.0}, "title must be a string"},
		{"empty", map[string]any{"title": ""}, "title must not be empty"},
		{"whitespace", map[string]any{"title": " \t\n "}, "title must not be empty"},
		{"too long", map[string]any{"title": strings.Repeat("a", 501)}, "title must be at most 500 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []string{tt.want}, idea.Validate(tt.payload))
		})
	}
}

func TestValidate_TitleLengthCountsCharacters(t *testing.T) {
	assert.Empty(t, idea.Validate(map[string]any{"title": strings.Repeat("é", 500)}))
	assert.Empty(t, idea.Validate(map[string]any{"title": "  " + strings.Repeat("a", 500) + "  "}))
}

func TestValidate_Color(t *testing.T) {
	for _, c := range []string{"#000000", "#ffffff", "#6366F1"} {
		assert.Empty(t, idea.Validate(map[string]any{"title": "T", "color": c}), c)
	}
	for _, c := range []any{"red", "#fff", "#1234567", "6366f1", "#gggggg", " #000000", 0.0} {
		assert.Equal(t,
			[]string{"color must be a hex color like #6366f1"},
			idea.Validate(map[string]any{"title": "T", "color": c}), c)
	}
}

func TestValidate_ReportsEveryViolationInOrder(t *testing.T) {
	payload := map[string]any{
		"description": 1.0,
		"status":      "bogus",
		"tags":        []any{"ok", 2.0},
		"color":       "blue",
		"image_url":   true,
	}
	want := []string{
		"title is required",
		"description must be a string",
		"status must be one of: idea, research, progress, launched, archived",
		"tags must be an array of strings",
		"color must be a hex color like #6366f1",
		"image_url must be a string",
	}
	assert.Equal(t, want, idea.Validate(payload))
	assert.Equal(t, want, idea.Validate(payload), "result is deterministic")
}

func TestValidate_TagsMustBeArray(t *testing.T) {
	assert.Equal(t,
		[]string{"tags must be an array of strings"},
		idea.Validate(map[string]any{"title": "T", "tags": "a,b"}))
	assert.Empty(t, idea.Validate(map[string]any{"title": "T", "tags": []any{}}))
}

func TestValidatePatch(t *testing.T) {
	assert.Empty(t, idea.ValidatePatch(map[string]any{}))
	assert.Empty(t, idea.ValidatePatch(map[string]any{"status": "launched"}))
	assert.Equal(t, []string{"title must not be empty"}, idea.ValidatePatch(map[string]any{"title": "  "}))
	assert.Equal(t, []string{"title is required"}, idea.ValidatePatch(map[string]any{"title": nil}))
	assert.Equal(t,
		[]string{"status must be one of: idea, research, progress, launched, archived"},
		idea.ValidatePatch(map[string]any{"status": "done"}))
}
