package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteDraftNormalize(t *testing.T) {
	t.Run("defaults category and tags", func(t *testing.T) {
		draft, err := NoteDraft{Title: "  Shopping ", Content: "milk, eggs"}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "Shopping", draft.Title)
		assert.Equal(t, DefaultCategory, draft.Category)
		assert.NotNil(t, draft.Tags)
		assert.Empty(t, draft.Tags)
	})

	t.Run("empty title", func(t *testing.T) {
		_, err := NoteDraft{Title: "   ", Content: "x"}.Normalize()
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "title", verr.Field)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := NoteDraft{Title: "x"}.Normalize()
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "content", verr.Field)
		assert.Equal(t, "content is required", verr.Message)
	})

	t.Run("whitespace content is kept", func(t *testing.T) {
		draft, err := NoteDraft{Title: "x", Content: "   "}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "   ", draft.Content)
	})
}

func TestNotePatchNormalize(t *testing.T) {
	empty := ""
	work := " Work "

	_, err := NotePatch{Title: &empty}.Normalize()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "title", verr.Field)

	patch, err := NotePatch{Category: &work}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "Work", *patch.Category)
	assert.Nil(t, patch.Title)
	assert.Nil(t, patch.Content)
	assert.Nil(t, patch.Tags)

	blank := "  "
	patch, err = NotePatch{Category: &blank}.Normalize()
	require.NoError(t, err)
	assert.Nil(t, patch.Category)

	_, err = NotePatch{Content: &empty}.Normalize()
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "content", verr.Field)
	assert.Equal(t, "content must not be empty", verr.Message)

	patch, err = NotePatch{Content: &blank}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "  ", *patch.Content)
}

func TestValidateNamesJSONField(t *testing.T) {
	err := Validate(struct {
		Secret string `json:"secret_value" validate:"min=8"`
	}{Secret: "short"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "secret_value", verr.Field)
	assert.Equal(t, "secret_value must be at least 8 characters", verr.Message)
}

func TestUniqueTags(t *testing.T) {
	got := UniqueTags([]string{"errand", " home", "", "errand", "home", "Errand"})
	assert.Equal(t, []string{"errand", "home", "Errand"}, got)
}
