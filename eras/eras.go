// Package eras holds the three per-era harmonization rule-sets for HMDA
// public data, kept as plain data: field schemas (name → kind), rename
// maps, categorical recodes, sentinel substitution, and geographic
// standardization. The eras are genuinely irreconcilable (loan amounts in
// thousands pre-2018, decimal tract encodings pre-2007) so the rule-sets
// stay architecturally separate rather than unified behind one mapping
// abstraction.
package eras

import (
	"github.com/invertedv/chutils"

	"github.com/invertedv/hmda/source"
)

// Kind is the semantic target type of a harmonized field.
type Kind int

const (
	Str Kind = iota
	Int16
	Int32
	Int64
	Float64
)

// Tier implements the length-based numeric tiering rule: integer fields
// of max width ≤4 digits → Int16, ≤9 → Int32, else Int64; non-integer
// numerics are Float64.
func Tier(maxDigits int, isFloat bool) Kind {
	if isFloat {
		return Float64
	}
	switch {
	case maxDigits <= 4:
		return Int16
	case maxDigits <= 9:
		return Int32
	}
	return Int64
}

// Ch renders the ClickHouse column type for the silver layer. Every
// harmonized column is Nullable: failed casts become null, never errors.
func (k Kind) Ch() string {
	switch k {
	case Int16:
		return "Nullable(Int16)"
	case Int32:
		return "Nullable(Int32)"
	case Int64:
		return "Nullable(Int64)"
	case Float64:
		return "Nullable(Float64)"
	}
	return "Nullable(String)"
}

// Field is one column of an era schema.
type Field struct {
	Name string
	Kind Kind
	Desc string
}

// Schema is an ordered era schema.
type Schema []Field

// Find returns the field named name.
func (s Schema) Find(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Narrow restricts the schema to the columns actually present in a file's
// header, in header order. Columns the schema does not know stay as
// strings; per-year column sets within an era are not identical, so an
// absent or extra column is never an error.
func (s Schema) Narrow(header []string) Schema {
	out := make(Schema, 0, len(header))
	for _, h := range header {
		if f, ok := s.Find(h); ok {
			out = append(out, f)
			continue
		}
		out = append(out, Field{Name: h, Kind: Str, Desc: "carried from source"})
	}
	return out
}

// RawTableDef renders the all-string bronze TableDef for the columns of
// header: the bronze layer preserves every semantic field as raw text.
func RawTableDef(header []string, key string) *chutils.TableDef {
	fds := make(map[int]*chutils.FieldDef)
	for ind, h := range header {
		fds[ind] = &chutils.FieldDef{
			Name:        h,
			ChSpec:      chutils.ChField{Base: chutils.ChString},
			Description: "raw source column",
			Legal:       chutils.NewLegalValues(),
			Missing:     "",
		}
	}
	return chutils.NewTableDef(key, chutils.MergeTree, fds)
}

// Rules is one era's complete harmonization rule-set.
type Rules struct {
	Name    string            // period label: pre2007, period_2007_2017, post2018
	Renames map[string]string // source name → harmonized name, non-strict
	Recodes map[string]Recode // harmonized name → band decoding
	Rescale map[string]int    // harmonized name → multiplier (amounts in 000s)
	Schema  Schema            // harmonized field → target kind

	// DropBronze lists columns excluded at bronze build (derived and
	// tract statistics deferred to silver).
	DropBronze []string
	// TractSidecars are the bulky per-tract statistics split into the
	// sidecar table for this era.
	TractSidecars []string
	// DerivedPrefer maps a raw demographic column to the official derived
	// column that overrides it in cleaned output (post-2018 only).
	DerivedPrefer map[string]string
}

// Rename maps a source column to its harmonized name; unknown columns
// pass through unchanged.
func (r *Rules) Rename(col string) string {
	if n, ok := r.Renames[col]; ok {
		return n
	}
	return col
}

// Dropped reports whether col is excluded from the bronze layer.
func (r *Rules) Dropped(col string) bool {
	for _, c := range r.DropBronze {
		if c == col {
			return true
		}
	}
	return false
}

// ForYear picks the loan rule-set covering an activity year.
func ForYear(year int) *Rules {
	switch {
	case year < 2007:
		return Pre2007
	case year <= 2017:
		return Period0717
	}
	return Post2018
}

// ForDataset picks the rule-set for a dataset: panel and transmittal
// files carry one schema across years, loans follow their era.
func ForDataset(ds source.Dataset, year int) *Rules {
	switch ds {
	case source.Panel:
		return Panel
	case source.TS:
		return TS
	}
	return ForYear(year)
}
