package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field names a record attribute that can be rewritten across a dataset.
type Field string

const (
	FieldCaption        Field = "caption"
	FieldGenre          Field = "genre"
	FieldLyrics         Field = "lyrics"
	FieldBPM            Field = "bpm"
	FieldKeyscale       Field = "keyscale"
	FieldTimeSignature  Field = "timesignature"
	FieldDuration       Field = "duration"
	FieldLanguage       Field = "language"
	FieldIsInstrumental Field = "is_instrumental"
	FieldPromptOverride Field = "prompt_override"
)

var (
	// ErrUnknownField is returned for a field name ApplyField does not handle.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownLanguage is returned when applying a language outside Languages.
	ErrUnknownLanguage = errors.New("unknown language")
)

// Languages lists the language codes offered for a track.
var Languages = []string{"instrumental", "en", "zh", "ja", "ko", "es", "fr", "de", "pt", "ru"}

// IsKnownLanguage reports whether lang is one of Languages.
func IsKnownLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// ParseField resolves a user-supplied field name. "key" and "time_signature"
// are accepted as aliases.
func ParseField(name string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(name))); f {
	case FieldCaption, FieldGenre, FieldLyrics, FieldBPM, FieldKeyscale, FieldTimeSignature,
		FieldDuration, FieldLanguage, FieldIsInstrumental, FieldPromptOverride:
		return f, nil
	case "key":
		return FieldKeyscale, nil
	case "time_signature":
		return FieldTimeSignature, nil
	case "instrumental":
		return FieldIsInstrumental, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
}

// SetField writes value into a single record, coercing numeric and boolean
// text the way a form field would: unparseable numbers become 0 and
// unparseable booleans become false.
func (r *Record) SetField(field Field, value string) error {
	switch field {
	case FieldCaption:
		r.Caption = value
	case FieldGenre:
		r.Genre = value
	case FieldLyrics:
		r.Lyrics = value
	case FieldBPM:
		r.BPM = coerceInt(value)
	case FieldKeyscale:
		r.Keyscale = value
	case FieldTimeSignature:
		r.TimeSignature = value
	case FieldDuration:
		r.Duration = coerceInt(value)
	case FieldLanguage:
		if !IsKnownLanguage(value) {
			return fmt.Errorf("%w: %s", ErrUnknownLanguage, value)
		}
		r.Language = value
	case FieldIsInstrumental:
		b, _ := strconv.ParseBool(strings.TrimSpace(value))
		r.IsInstrumental = b
	case FieldPromptOverride:
		r.PromptOverride = ParsePromptOverride(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// ApplyField rewrites one field across every record in a single pass and
// returns the new slice. The input slice is left untouched; on error the
// input is returned as-is.
func ApplyField(records []Record, field Field, value string) ([]Record, error) {
	out := make([]Record, len(records))
	for i, rec := range records {
		if err := rec.SetField(field, value); err != nil {
			return records, err
		}
		out[i] = rec
	}
	return out, nil
}

// SetInstrumental fans the instrumental flag out to every record.
func SetInstrumental(records []Record, instrumental bool) []Record {
	out, _ := ApplyField(records, FieldIsInstrumental, strconv.FormatBool(instrumental))
	return out
}

func coerceInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}
