package media

import (
	"strings"

	"github.com/kaelin-dev/subtrans/internal/langtag"
)

// SelectSubtitleTrack picks which subtitle track to translate when the
// task doesn't name one: prefer a track tagged with sourceLang; else
// the first subtitle track not already tagged with targetLang; else
// the first subtitle track in the list.
func SelectSubtitleTrack(tracks []Track, sourceLang, targetLang string) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}

	if sourceLang != "" {
		if t, ok := firstMatchingLanguage(tracks, sourceLang); ok {
			return t, true
		}
	}

	for _, t := range tracks {
		if !sameLanguage(t.Language, targetLang) {
			return t, true
		}
	}

	return tracks[0], true
}

func firstMatchingLanguage(tracks []Track, lang string) (Track, bool) {
	for _, t := range tracks {
		if sameLanguage(t.Language, lang) {
			return t, true
		}
	}
	return Track{}, false
}

// sameLanguage compares a container language tag ("chi", "zh") against a
// task language ("Chinese", "zh-CN") through ISO-639 resolution, falling
// back to a case-insensitive string compare for tags iso639-3 doesn't
// know.
func sameLanguage(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ta, errA := langtag.Resolve(a)
	tb, errB := langtag.Resolve(b)
	if errA == nil && errB == nil {
		return langtag.Equal(ta, tb)
	}
	return strings.EqualFold(a, b)
}
