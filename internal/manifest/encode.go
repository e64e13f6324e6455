package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"curator/pkg/models"
)

// CreatedAtLayout is the second-resolution part of created_at. A fixed
// six-digit fraction (milliseconds * 1000) is appended to it.
const CreatedAtLayout = "2006-01-02T15:04:05"

// Encode renders metadata and records in the manifest's fixed key order with
// two-space indentation. The output is byte-for-byte deterministic for a
// given input so saved manifests diff cleanly.
//
// Every sample's custom_tag is taken from meta, labeled is recomputed from the
// caption, and num_samples is len(records).
func Encode(meta models.DatasetMetadata, records []models.Record) []byte {
	w := &writer{}
	w.line(0, "{")
	w.line(2, `"metadata": {`)
	w.str(4, "name", meta.Name, true)
	w.str(4, "custom_tag", meta.CustomTag, true)
	w.str(4, "tag_position", string(meta.TagPosition), true)
	w.str(4, "created_at", FormatCreatedAt(meta.CreatedAt), true)
	w.num(4, "num_samples", len(records), true)
	w.boolean(4, "all_instrumental", meta.AllInstrumental, true)
	w.num(4, "genre_ratio", meta.GenreRatio, false)
	w.line(2, "},")
	w.line(2, `"samples": [`)

	for i, rec := range records {
		w.line(4, "{")
		w.str(6, "id", rec.ID, true)
		w.str(6, "audio_path", filepath.FromSlash(rec.AudioPath), true)
		w.str(6, "filename", rec.Filename, true)
		w.str(6, "caption", rec.Caption, true)
		w.str(6, "genre", rec.Genre, true)
		w.str(6, "lyrics", rec.Lyrics, true)
		w.str(6, "raw_lyrics", "", true)
		w.str(6, "formatted_lyrics", rec.Lyrics, true)
		w.num(6, "bpm", rec.BPM, true)
		w.str(6, "keyscale", rec.Keyscale, true)
		w.str(6, "timesignature", rec.TimeSignature, true)
		w.num(6, "duration", rec.Duration, true)
		w.str(6, "language", rec.Language, true)
		w.boolean(6, "is_instrumental", rec.IsInstrumental, true)
		w.str(6, "custom_tag", meta.CustomTag, true)
		w.boolean(6, "labeled", rec.Labeled(), true)
		if po := models.ParsePromptOverride(string(rec.PromptOverride)); po == models.PromptOverrideNone {
			w.null(6, "prompt_override", false)
		} else {
			w.str(6, "prompt_override", string(po), false)
		}
		if i+1 < len(records) {
			w.line(4, "},")
		} else {
			w.line(4, "}")
		}
	}

	w.line(2, "]")
	w.line(0, "}")
	return w.buf.Bytes()
}

// FormatCreatedAt renders t in local time with a six-digit fraction carrying
// millisecond precision, e.g. 2025-03-01T14:02:11.347000.
func FormatCreatedAt(t time.Time) string {
	local := t.Local()
	micros := local.Nanosecond() / int(time.Millisecond) * 1000
	return fmt.Sprintf("%s.%06d", local.Format(CreatedAtLayout), micros)
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) line(indent int, text string) {
	w.buf.WriteString(strings.Repeat(" ", indent))
	w.buf.WriteString(text)
	w.buf.WriteByte('\n')
}

func (w *writer) field(indent int, key, raw string, comma bool) {
	w.buf.WriteString(strings.Repeat(" ", indent))
	w.buf.WriteString(quote(key))
	w.buf.WriteString(": ")
	w.buf.WriteString(raw)
	if comma {
		w.buf.WriteByte(',')
	}
	w.buf.WriteByte('\n')
}

func (w *writer) str(indent int, key, value string, comma bool) {
	w.field(indent, key, quote(value), comma)
}

func (w *writer) num(indent int, key string, value int, comma bool) {
	w.field(indent, key, strconv.Itoa(value), comma)
}

func (w *writer) boolean(indent int, key string, value bool, comma bool) {
	w.field(indent, key, strconv.FormatBool(value), comma)
}

func (w *writer) null(indent int, key string, comma bool) {
	w.field(indent, key, "null", comma)
}

// quote applies standard JSON string escaping without the HTML-safe
// escapes encoding/json adds by default.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
