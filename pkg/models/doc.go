// Package models defines the in-memory shape of a caption dataset: one Record
// per audio sample and one DatasetMetadata per manifest.
//
// Records are plain values. Every field is comparable, so a saved snapshot is
// just a copy and dirty tracking is struct equality:
//
//	saved := rec.Snapshot()
//	rec.Caption = "warm rhodes, lazy swing"
//	rec.IsDifferentFrom(saved) // true
//
// The labeled flag is never stored; it is derived from the caption through
// Record.Labeled whenever it is needed.
package models
