// Package usecase wires the domain collaborators into the four user-facing
// operations (download, upload, forward, monitor) described by the engine.
package usecase

import (
	"sort"
	"strings"

	"tgforward/internal/domain"
)

// TextProcessor applies a ChannelPair's caption policy in the fixed order
// spec.md §4.4.3 requires: keyword filter, then ordered replacement, then
// caption removal.
type TextProcessor struct{}

func NewTextProcessor() *TextProcessor {
	return &TextProcessor{}
}

// ProcessResult is what the pipeline needs to know after processing: the
// caption to actually send, whether the group was filtered out, and whether
// any replacement rule fired (kept for stats/debugging, mirrors the original).
type ProcessResult struct {
	Caption  string
	Filtered bool
	Replaced bool
}

// Process runs the three-step caption pipeline against one group's caption.
func (p *TextProcessor) Process(pair domain.ChannelPair, caption string) ProcessResult {
	if len(pair.Keywords) > 0 && !containsAnyKeyword(caption, pair.Keywords) {
		return ProcessResult{Caption: caption, Filtered: true}
	}

	replaced := false
	for _, r := range pair.Replacements {
		if r.Original == "" {
			continue
		}
		if strings.Contains(caption, r.Original) {
			caption = strings.ReplaceAll(caption, r.Original, r.Replacement)
			replaced = true
		}
	}

	if pair.RemoveCaptions {
		caption = ""
	}

	return ProcessResult{Caption: caption, Replaced: replaced}
}

func containsAnyKeyword(caption string, keywords []string) bool {
	lc := strings.ToLower(caption)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(lc, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ExtractAlbumCaption finds the caption belonging to an album's lowest-id
// member, falling back to the first non-empty caption if the lowest-id
// message itself carries none (captions otherwise live only on individual
// album members, spec.md §4.4.3).
func ExtractAlbumCaption(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	sorted := make([]domain.Message, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, m := range sorted {
		if m.Caption != "" {
			return m.Caption
		}
	}
	return ""
}

// MediaKindAllowed reports whether kind passes a pair's media-type filter. An
// empty/nil filter allows every kind.
func MediaKindAllowed(pair domain.ChannelPair, kind domain.MediaKind) bool {
	if len(pair.MediaKinds) == 0 {
		return true
	}
	return pair.MediaKinds[kind]
}

// ParseMediaKinds turns the JSON config's plain string list (e.g. "photo",
// "video") into the set domain.ChannelPair.MediaKinds expects. Unknown
// strings are ignored rather than rejected, so a config typo degrades to "no
// extra filter" instead of failing the whole run.
func ParseMediaKinds(types []string) map[domain.MediaKind]bool {
	if len(types) == 0 {
		return nil
	}
	out := make(map[domain.MediaKind]bool, len(types))
	for _, t := range types {
		switch domain.MediaKind(strings.ToLower(t)) {
		case domain.MediaPhoto, domain.MediaVideo, domain.MediaDocument, domain.MediaAudio, domain.MediaAnimation, domain.MediaText:
			out[domain.MediaKind(strings.ToLower(t))] = true
		}
	}
	return out
}
