// Package langtag resolves free-form language identifiers (BCP-47-ish tags,
// English names, common aliases) against ISO-639 and extracts language
// markers embedded in subtitle filenames.
package langtag

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	iso "github.com/barbashov/iso639-3"
)

const Undetermined = "und"

// Tag is a resolved language identifier: an ISO-639 language plus an
// optional region/script subtag (e.g. "Hans" in zh-Hans).
type Tag struct {
	*iso.Language
	Subtag string
}

// Code returns the shortest canonical ISO-639 code for the language
// (Part1 > Part3 > Part2T > Part2B), matching the convention subtitle
// filenames and Settings keys use throughout this system.
func (t Tag) Code() string {
	return canonicalCode(t.Language)
}

func canonicalCode(l *iso.Language) string {
	if l == nil {
		return Undetermined
	}
	switch {
	case l.Part1 != "":
		return l.Part1
	case l.Part3 != "":
		return l.Part3
	case l.Part2T != "":
		return l.Part2T
	case l.Part2B != "":
		return l.Part2B
	}
	return Undetermined
}

// aliases maps a handful of names the system must recognize beyond what
// iso639-3's own FromName lookup tolerates; the table stays open to
// extension but must keep tolerating these.
var aliases = map[string]string{
	"chinese":    "zho",
	"zh-cn":      "zho",
	"zh_cn":      "zho",
	"chi":        "zho",
	"mandarin":   "cmn",
	"english":    "eng",
	"en-us":      "eng",
	"en-gb":      "eng",
}

// Resolve parses a single BCP-47-ish tag or a language name/alias into a Tag.
// Examples accepted: "zh", "zh-Hans", "zh-yue-Hans", "Chinese", "en".
func Resolve(raw string) (Tag, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tag{}, fmt.Errorf("langtag: empty input")
	}

	if code, ok := aliases[strings.ToLower(raw)]; ok {
		return Tag{Language: iso.FromAnyCode(code)}, nil
	}

	parts := strings.Split(raw, "-")
	primary := strings.ToLower(parts[0])

	var tag Tag
	tag.Language = iso.FromAnyCode(primary)
	if tag.Language == nil && len(primary) > 3 {
		tag.Language = iso.FromName(strings.Title(strings.ToLower(parts[0])))
	}
	if tag.Language == nil {
		if primary == "jp" {
			return Tag{}, fmt.Errorf("langtag: 'jp' is not an ISO-639 code; Japanese is 'ja' or 'jpn'")
		}
		return Tag{}, fmt.Errorf("langtag: unrecognized language '%s'", raw)
	}

	subtagIdx := 1
	if len(parts) > 1 {
		first := strings.ToLower(parts[1])
		if len(first) == 3 {
			if extlang := iso.FromAnyCode(first); extlang != nil {
				tag.Language = extlang
				subtagIdx = 2
			}
		}
	}
	if len(parts) > subtagIdx {
		tag.Subtag = strings.ToLower(parts[subtagIdx])
	}
	return tag, nil
}

// Equal reports whether two tags denote the same base language, ignoring
// subtags and tolerating either side being the alias-normalized form.
func Equal(a, b Tag) bool {
	if a.Language == nil || b.Language == nil {
		return false
	}
	return a.Part3 == b.Part3
}

// GuessFromFilename extracts a trailing language marker from a subtitle
// filename, e.g. "show.s01e01.zh-Hans.srt" -> zh-Hans, "movie.en.ass" -> en.
//
// The scan loop is adapted from the language-marker-detection approach mpv
// uses for fuzzy subtitle auto-selection (mpv/misc/language.c, LGPL-2+);
// no code was copied, only the delimiter/length heuristic.
func GuessFromFilename(name string) (Tag, bool) {
	marker := findTrailingMarker(name)
	if marker == "" {
		return Tag{}, false
	}
	tag, err := Resolve(marker)
	if err != nil {
		return Tag{}, false
	}
	return tag, true
}

func findTrailingMarker(name string) string {
	stripped := stripSubtitleWords(filepath.Base(name))

	for pass := 0; pass < 3; pass++ {
		stripped = strings.TrimSuffix(stripped, filepath.Ext(stripped))
		stripped = strings.TrimSpace(stripped)
		if len(stripped) < 2 {
			return ""
		}

		i := len(stripped) - 1
		delim := byte('.')
		if stripped[i] == ')' {
			delim, i = '(', i-1
		} else if stripped[i] == ']' {
			delim, i = '[', i-1
		}

		length, suffixLen := 0, 0
		ok := true
		for {
			for i >= 0 && unicode.IsLetter(rune(stripped[i])) {
				length++
				i--
			}
			if length < suffixLen+1 || length > suffixLen+8 {
				ok = false
			}
			if i >= 0 && stripped[i] == '-' {
				length++
				i--
				suffixLen = length
			} else {
				break
			}
		}
		if length < suffixLen+2 || length > suffixLen+3 || i < 0 || stripped[i] != delim {
			ok = false
		}
		if ok {
			return stripped[i+1 : i+1+length]
		}
	}
	return ""
}

func stripSubtitleWords(s string) string {
	s = strings.ToLower(s)
	for _, word := range []string{"closedcaptions", "subtitles", "subtitle", "dubtitles", "dialog"} {
		s = strings.ReplaceAll(s, word, "")
	}
	return s
}
