package usecase

import (
	"testing"

	"tgforward/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestTextProcessor_KeywordFilter(t *testing.T) {
	p := NewTextProcessor()
	pair := domain.ChannelPair{Keywords: []string{"release", "beta"}}

	result := p.Process(pair, "New Release out now")
	assert.False(t, result.Filtered)

	result = p.Process(pair, "nothing interesting here")
	assert.True(t, result.Filtered)
}

func TestTextProcessor_ReplacementOrderIsPreserved(t *testing.T) {
	p := NewTextProcessor()
	pair := domain.ChannelPair{
		Replacements: []domain.TextReplacement{
			{Original: "foo", Replacement: "bar"},
			{Original: "bar", Replacement: "baz"},
		},
	}

	result := p.Process(pair, "foo")
	assert.True(t, result.Replaced)
	assert.Equal(t, "baz", result.Caption)
}

func TestTextProcessor_CaptionRemovalAfterKeywordMatch(t *testing.T) {
	p := NewTextProcessor()
	pair := domain.ChannelPair{
		Keywords:       []string{"keep"},
		RemoveCaptions: true,
	}

	result := p.Process(pair, "please keep this one")
	assert.False(t, result.Filtered)
	assert.Empty(t, result.Caption)
}

func TestExtractAlbumCaption_PrefersLowestIDNonEmpty(t *testing.T) {
	msgs := []domain.Message{
		{ID: 3, Caption: "third"},
		{ID: 1, Caption: ""},
		{ID: 2, Caption: "second"},
	}
	assert.Equal(t, "second", ExtractAlbumCaption(msgs))
}

func TestMediaKindAllowed_EmptyFilterAllowsEverything(t *testing.T) {
	pair := domain.ChannelPair{}
	assert.True(t, MediaKindAllowed(pair, domain.MediaVideo))
}

func TestMediaKindAllowed_RespectsSet(t *testing.T) {
	pair := domain.ChannelPair{MediaKinds: map[domain.MediaKind]bool{domain.MediaPhoto: true}}
	assert.True(t, MediaKindAllowed(pair, domain.MediaPhoto))
	assert.False(t, MediaKindAllowed(pair, domain.MediaVideo))
}

func TestParseMediaKinds_IgnoresUnknown(t *testing.T) {
	kinds := ParseMediaKinds([]string{"photo", "bogus", "video"})
	assert.True(t, kinds[domain.MediaPhoto])
	assert.True(t, kinds[domain.MediaVideo])
	assert.False(t, kinds[domain.MediaKind("bogus")])
}
