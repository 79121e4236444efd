// Package subscodec parses and serializes SRT/ASS subtitle files, exposing
// an ordered list of dialogue units for translation while treating
// timecodes and styling as opaque passthrough data.
package subscodec

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	astisub "github.com/asticode/go-astisub"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/kaelin-dev/subtrans/internal/apperr"
)

// Format is the on-disk subtitle format, inferred from extension.
type Format string

const (
	FormatSRT Format = "srt"
	FormatASS Format = "ass"
)

// Unit is one timecoded dialogue entry. StartAt/EndAt and the rest of the
// item's styling metadata stay opaque to translation; only Text is
// mutated.
type Unit struct {
	Index int
	Text  string
}

// Subtitles is a decoded subtitle file plus the format it should be
// re-serialized as.
type Subtitles struct {
	astisub.Subtitles
	Format Format
}

// Open detects encoding (UTF-8 with/without BOM, UTF-16 LE/BE) and format
// by extension, then parses into dialogue units.
func Open(path string) (*Subtitles, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, &apperr.CodecError{Path: path, Err: err}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("subscodec: read %s: %w", path, err)
	}

	utf8, err := toUTF8(raw)
	if err != nil {
		return nil, &apperr.CodecError{Path: path, Err: err}
	}

	var subs *astisub.Subtitles
	switch format {
	case FormatSRT:
		subs, err = astisub.ReadFromSRT(bytes.NewReader(utf8))
	case FormatASS:
		subs, err = astisub.ReadFromSSA(bytes.NewReader(utf8))
	}
	if err != nil {
		return nil, &apperr.CodecError{Path: path, Err: err}
	}

	return &Subtitles{Subtitles: *subs, Format: format}, nil
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return FormatSRT, nil
	case ".ass", ".ssa":
		return FormatASS, nil
	default:
		return "", fmt.Errorf("unrecognized subtitle extension: %s", path)
	}
}

// toUTF8 sniffs a BOM and transcodes UTF-16 LE/BE to UTF-8; a UTF-8 BOM
// is stripped, and text with no BOM passes through unchanged (treated as
// UTF-8).
func toUTF8(raw []byte) ([]byte, error) {
	switch {
	case len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF:
		return raw[3:], nil
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE:
		return decodeUTF16(raw, unicode.LittleEndian)
	case len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF:
		return decodeUTF16(raw, unicode.BigEndian)
	default:
		return raw, nil
	}
}

func decodeUTF16(raw []byte, endian unicode.Endianness) ([]byte, error) {
	dec := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return nil, fmt.Errorf("utf-16 decode: %w", err)
	}
	return out, nil
}

// Units returns the ordered dialogue units, one per subtitle item's
// flattened text.
func (s *Subtitles) Units() []Unit {
	units := make([]Unit, len(s.Items))
	for i, item := range s.Items {
		units[i] = Unit{Index: i, Text: itemText(item)}
	}
	return units
}

func itemText(item *astisub.Item) string {
	var lines []string
	for _, l := range item.Lines {
		lines = append(lines, l.String())
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ApplyTranslations overwrites each item's text with the translation at
// the matching index, preserving every other field (timecodes, styling).
// When bilingual is true, the item's text becomes translated+sep+original.
func (s *Subtitles) ApplyTranslations(translations []string, bilingual bool, sep string) error {
	if len(translations) != len(s.Items) {
		return &apperr.ConsistencyError{Message: fmt.Sprintf(
			"subscodec: %d translations for %d units", len(translations), len(s.Items))}
	}
	if sep == "" {
		sep = defaultSeparator(s.Format)
	}
	for i, item := range s.Items {
		text := translations[i]
		if bilingual {
			text = text + sep + itemText(item)
		}
		item.Lines = []astisub.Line{{Items: []astisub.LineItem{{Text: text}}}}
	}
	return nil
}

func defaultSeparator(f Format) string {
	if f == FormatASS {
		return `\N`
	}
	return "\n"
}

// Write serializes to the given path in the Subtitles' Format. Parsing
// then writing without mutating Items round-trips byte-identical modulo
// line-ending normalization, since astisub owns both directions of the
// codec.
func (s *Subtitles) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("subscodec: create %s: %w", path, err)
	}
	defer f.Close()
	return s.writeTo(f)
}

func (s *Subtitles) writeTo(w io.Writer) error {
	switch s.Format {
	case FormatSRT:
		return s.WriteToSRT(w)
	case FormatASS:
		return s.WriteToSSA(w)
	default:
		return fmt.Errorf("subscodec: unknown format %q", s.Format)
	}
}
