package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"curator/pkg/models"
)

// Manifest is the decoded content of a dataset manifest file.
type Manifest struct {
	Metadata models.DatasetMetadata
	Records  []models.Record
	// Skips lists the field values that were normalized during decoding.
	Skips []ValidationSkip
}

// createdAtLayouts are tried in order. Layouts without a zone are read in
// local time, matching how created_at is written.
var createdAtLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02", true},
}

// Decode parses manifest text. sourceDir is the folder the manifest belongs
// to; it is joined with filename for samples that carry no audio_path.
//
// Missing or mistyped keys take their documented defaults and unknown keys are
// ignored. Invalid JSON or a non-object root fails with ErrParse.
func Decode(data []byte, sourceDir string) (Manifest, error) {
	root, err := parseRoot(data)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	m.Metadata = decodeMetadata(root.child("metadata"), &m.Skips)

	samples := root.array("samples")
	m.Records = make([]models.Record, 0, len(samples))
	for i, v := range samples {
		obj, _ := v.(map[string]any)
		m.Records = append(m.Records, decodeRecord(i, object(obj), sourceDir, &m.Skips))
	}
	return m, nil
}

func parseRoot(data []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after root value", ErrParse)
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root is not an object", ErrParse)
	}
	return object(obj), nil
}

func decodeMetadata(o object, skips *[]ValidationSkip) models.DatasetMetadata {
	meta := models.DatasetMetadata{
		Name:            o.str("name", models.DefaultDatasetName),
		CustomTag:       o.str("custom_tag", ""),
		AllInstrumental: o.boolean("all_instrumental", false),
	}

	rawPosition := o.str("tag_position", string(models.TagPrepend))
	meta.TagPosition = models.ParseTagPosition(rawPosition)
	if rawPosition != string(meta.TagPosition) && rawPosition != "replace_caption" {
		*skips = append(*skips, ValidationSkip{Sample: -1, Field: "tag_position", Raw: rawPosition, Used: string(meta.TagPosition)})
	}

	rawCreated := o.str("created_at", "")
	created, ok := ParseCreatedAt(rawCreated)
	if !ok {
		created = time.Now().UTC()
		if rawCreated != "" {
			*skips = append(*skips, ValidationSkip{Sample: -1, Field: "created_at", Raw: rawCreated, Used: FormatCreatedAt(created)})
		}
	}
	meta.CreatedAt = created

	ratio := o.integer("genre_ratio", 0)
	meta.GenreRatio = models.ClampGenreRatio(ratio)
	if ratio != meta.GenreRatio {
		*skips = append(*skips, ValidationSkip{Sample: -1, Field: "genre_ratio", Raw: strconv.Itoa(ratio), Used: strconv.Itoa(meta.GenreRatio)})
	}
	return meta
}

func decodeRecord(index int, o object, sourceDir string, skips *[]ValidationSkip) models.Record {
	rec := models.Record{
		ID:             o.str("id", ""),
		AudioPath:      o.str("audio_path", ""),
		Caption:        o.str("caption", ""),
		Genre:          o.str("genre", ""),
		Lyrics:         o.str("lyrics", ""),
		BPM:            o.integer("bpm", 0),
		Keyscale:       o.str("keyscale", ""),
		TimeSignature:  o.str("timesignature", ""),
		Duration:       o.integer("duration", 0),
		Language:       o.str("language", models.DefaultLanguage),
		IsInstrumental: o.boolean("is_instrumental", false),
		CustomTag:      o.str("custom_tag", ""),
	}
	rec.Filename = o.str("filename", models.BaseName(rec.AudioPath))

	if raw, ok := o["prompt_override"].(string); ok {
		rec.PromptOverride = models.ParsePromptOverride(raw)
		if rec.PromptOverride == models.PromptOverrideNone && raw != "" {
			*skips = append(*skips, ValidationSkip{Sample: index, Field: "prompt_override", Raw: raw})
		}
	}

	if rec.ID == "" {
		source := rec.AudioPath
		if source == "" {
			source = rec.Filename
		}
		rec.ID = models.GenerateID(source)
	}
	if rec.AudioPath == "" && rec.Filename != "" {
		rec.AudioPath = filepath.Join(sourceDir, rec.Filename)
	}
	return rec
}

// ParseCreatedAt reads an ISO-8601 timestamp. The boolean is false when no
// supported layout matches.
func ParseCreatedAt(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range createdAtLayouts {
		var (
			t   time.Time
			err error
		)
		if l.local {
			t, err = time.ParseInLocation(l.layout, s, time.Local)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// object is a decoded JSON object with typed, defaulting accessors. A value
// of the wrong type reads as the default, never as an error.
type object map[string]any

func (o object) str(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

func (o object) boolean(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// integer accepts whole JSON numbers only; fractions and strings read as def.
func (o object) integer(key string, def int) int {
	n, ok := o[key].(json.Number)
	if !ok {
		return def
	}
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		return int(i)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return def
	}
	return int(f)
}

func (o object) child(key string) object {
	if m, ok := o[key].(map[string]any); ok {
		return object(m)
	}
	return object{}
}

func (o object) array(key string) []any {
	if a, ok := o[key].([]any); ok {
		return a
	}
	return nil
}
