// Package clean is the order-sensitive cleaning pipeline over batches of
// harmonized loan records: identity keys, deduplication, missing-value
// normalization, tract crosswalk harmonization, plausibility bounds,
// rate-spread repair and basic outlier flags. Steps are independently
// callable; Run composes them in the fixed order later steps assume.
// Data-quality impact is reported as counts in Metadata, never raised.
package clean

import (
	"fmt"
	"math"
	"strings"

	"github.com/invertedv/hmda/eras"
)

// Table is a small in-memory columnar batch: cell values are string,
// float64, int64 or nil.
type Table struct {
	Cols []string
	Rows [][]any
}

// Col returns the index of a column, -1 when absent. Absent columns are
// skipped by every step, never an error.
func (t *Table) Col(name string) int {
	for i, c := range t.Cols {
		if c == name {
			return i
		}
	}
	return -1
}

// AddCol appends a column filled with nil and returns its index.
func (t *Table) AddCol(name string) int {
	t.Cols = append(t.Cols, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], nil)
	}
	return len(t.Cols) - 1
}

// Metadata carries the batch-level counts the pipeline reports.
type Metadata struct {
	In               int
	NullKeys         int
	DedupDropped     int
	NormalizedCells  int
	TractRemapped    int
	BoundsDropped    int
	RateSpreadNulled int
	OutliersFlagged  int
	Out              int
}

func (m Metadata) String() string {
	return fmt.Sprintf("in=%d dedup=%d bounds=%d spread=%d outliers=%d out=%d",
		m.In, m.DedupDropped, m.BoundsDropped, m.RateSpreadNulled, m.OutliersFlagged, m.Out)
}

// KeyCol is the derived identity column used only for deduplication.
const KeyCol = "hmda_record_key"

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		return eras.ToFloat(x)
	}
	return 0, false
}

// AddIdentityKeys derives hmda_record_key per record: lei||uli for
// post-2018 rows, respondent_id||agency_code||sequence_number before.
// A missing component yields a null key rather than an error.
func AddIdentityKeys(t *Table, post2018 bool, md *Metadata) {
	var parts []int
	if post2018 {
		parts = []int{t.Col("lei"), t.Col("universal_loan_identifier")}
	} else {
		parts = []int{t.Col("respondent_id"), t.Col("agency_code"), t.Col("sequence_number")}
	}
	ki := t.Col(KeyCol)
	if ki < 0 {
		ki = t.AddCol(KeyCol)
	}
	for _, row := range t.Rows {
		segs := make([]string, 0, len(parts))
		ok := true
		for _, p := range parts {
			if p < 0 || row[p] == nil {
				ok = false
				break
			}
			segs = append(segs, strings.TrimSpace(fmt.Sprintf("%v", row[p])))
		}
		if !ok {
			row[ki] = nil
			md.NullKeys++
			continue
		}
		row[ki] = strings.Join(segs, "||")
	}
}

// Deduplicate keeps the last record per identity key. Rows with a null
// key cannot be asserted duplicates and are all kept.
func Deduplicate(t *Table, md *Metadata) {
	ki := t.Col(KeyCol)
	if ki < 0 {
		return
	}
	last := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		if k, ok := asString(row[ki]); ok {
			last[k] = i
		}
	}
	kept := make([][]any, 0, len(t.Rows))
	for i, row := range t.Rows {
		if k, ok := asString(row[ki]); ok && last[k] != i {
			md.DedupDropped++
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
}

// NormalizeMissing nulls NA-like tokens and the numeric missing-value
// sentinels in every column, applies the cleaning-side
// conforming_loan_limit variant, and overrides raw demographic columns
// with the official derived columns when present (post-2018 only).
// Sentinel nulling runs before the plausibility bounds, so an
// exempt-coded value never counts as out of range.
func NormalizeMissing(t *Table, rules *eras.Rules, md *Metadata) {
	cli := t.Col("conforming_loan_limit")
	for _, row := range t.Rows {
		// the conforming recode runs before the generic nulling so its
		// NA label is recoded, not swallowed as a missing token
		if cli >= 0 {
			if s, ok := asString(row[cli]); ok {
				row[cli] = eras.ConformingClean.Apply(s)
			}
		}
		for j, v := range row {
			if s, ok := asString(v); ok && eras.IsNA(s) {
				row[j] = nil
				md.NormalizedCells++
				continue
			}
			if j == cli {
				continue // recoded above; its sentinel codes are values here
			}
			if f, ok := asFloat(v); ok && isSentinel(f) {
				row[j] = nil
				md.NormalizedCells++
			}
		}
	}
	for raw, derived := range rules.DerivedPrefer {
		ri, di := t.Col(raw), t.Col(derived)
		if ri < 0 || di < 0 {
			continue
		}
		for _, row := range t.Rows {
			if row[di] != nil {
				row[ri] = row[di]
			}
		}
	}
}

// numeric missing-value encodings the public files carry
func isSentinel(v float64) bool {
	switch v {
	case -99999, 99999, -1111, 1111:
		return true
	}
	return false
}

// HarmonizeTract remaps census_tract through a vintage crosswalk.
// Left join with coalesce-to-original: records without a crosswalk entry
// keep their tract, and no row is ever dropped.
func HarmonizeTract(t *Table, crosswalk map[string]string, md *Metadata) {
	ti := t.Col("census_tract")
	if ti < 0 || len(crosswalk) == 0 {
		return
	}
	for _, row := range t.Rows {
		if s, ok := asString(row[ti]); ok {
			if mapped, hit := crosswalk[s]; hit {
				row[ti] = mapped
				md.TractRemapped++
			}
		}
	}
}

// PlausibilityFilter drops rows with a bounded column outside [Lo, Hi].
// Null values always pass: null is not out of bounds.
func PlausibilityFilter(t *Table, bounds Bounds, md *Metadata) {
	type bi struct {
		col int
		b   Bound
	}
	idx := make([]bi, 0, len(bounds))
	for name, b := range bounds {
		if ci := t.Col(name); ci >= 0 {
			idx = append(idx, bi{ci, b})
		}
	}
	kept := make([][]any, 0, len(t.Rows))
rows:
	for _, row := range t.Rows {
		for _, x := range idx {
			if row[x.col] == nil {
				continue
			}
			v, ok := asFloat(row[x.col])
			if !ok {
				continue
			}
			if v < x.b.Lo || v > x.b.Hi {
				md.BoundsDropped++
				continue rows
			}
		}
		kept = append(kept, row)
	}
	t.Rows = kept
}

// CleanRateSpread nulls rate_spread values with absolute value above 20,
// a defense against unit errors in the source.
func CleanRateSpread(t *Table, md *Metadata) {
	ri := t.Col("rate_spread")
	if ri < 0 {
		return
	}
	for _, row := range t.Rows {
		if v, ok := asFloat(row[ri]); ok && math.Abs(v) > 20 {
			row[ri] = nil
			md.RateSpreadNulled++
		}
	}
}

// OutlierCols are the pricing columns screened by FlagOutliers.
var OutlierCols = []string{"interest_rate", "rate_spread", "total_loan_costs"}

// OutlierZ is the per-batch z-score threshold.
const OutlierZ = 6.0

// FlagOutliers flags values more than OutlierZ standard deviations from
// the batch mean in an outlier_{col} column. A screen, not a filter:
// nothing is dropped.
func FlagOutliers(t *Table, md *Metadata) {
	for _, name := range OutlierCols {
		ci := t.Col(name)
		if ci < 0 {
			continue
		}
		var sum, sumsq float64
		n := 0
		for _, row := range t.Rows {
			if v, ok := asFloat(row[ci]); ok {
				sum += v
				sumsq += v * v
				n++
			}
		}
		if n < 2 {
			continue
		}
		mean := sum / float64(n)
		sd := math.Sqrt(sumsq/float64(n) - mean*mean)
		if sd == 0 {
			continue
		}
		fi := t.AddCol("outlier_" + name)
		for _, row := range t.Rows {
			flag := int64(0)
			if v, ok := asFloat(row[ci]); ok && math.Abs(v-mean)/sd > OutlierZ {
				flag = 1
				md.OutliersFlagged++
			}
			row[fi] = flag
		}
	}
}

// Pipeline bundles the configurable pieces of a cleaning run.
type Pipeline struct {
	Rules     *eras.Rules
	Bounds    Bounds
	Crosswalk map[string]string // optional tract vintage remap
}

// Run applies the full pipeline in its fixed order and returns the batch
// metadata. Later steps assume earlier normalization already happened,
// so the order is part of the contract.
func (p *Pipeline) Run(t *Table) Metadata {
	md := Metadata{In: len(t.Rows)}
	bounds := p.Bounds
	if bounds == nil {
		bounds = DefaultBounds()
	}
	AddIdentityKeys(t, p.Rules == eras.Post2018, &md)
	Deduplicate(t, &md)
	NormalizeMissing(t, p.Rules, &md)
	HarmonizeTract(t, p.Crosswalk, &md)
	PlausibilityFilter(t, bounds, &md)
	CleanRateSpread(t, &md)
	FlagOutliers(t, &md)
	md.Out = len(t.Rows)
	return md
}
