// Package source classifies raw HMDA release files: delimiter detection,
// file-type codes, normalized archive stems, the HMDAIndex row identifier
// and the precedence ranking across release versions.
package source

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrFileType is returned when a filename cannot be classified into a
// release-version code. Fatal for the archive: partitioning downstream
// depends on a correct code.
var ErrFileType = fmt.Errorf("unparseable file type")

// ErrDelimiter is returned when no candidate delimiter yields a consistent
// column count across the sampled lines.
var ErrDelimiter = fmt.Errorf("undetectable delimiter")

// SampleSize is the number of bytes Delimiter inspects.
const SampleSize = 16000

// candidate delimiters, in preference order when counts tie
var candidates = []byte{'|', ',', '\t'}

// Delimiter sniffs the field delimiter from a sample of the file.
// A candidate wins if it appears on every sampled line the same number of
// times; ties go to the higher per-line count.
func Delimiter(sample []byte) (byte, error) {
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	lines := bytes.Split(sample, []byte{'\n'})
	// the final line is usually truncated mid-record
	if len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}

	best, bestCnt := byte(0), 0
	for _, cand := range candidates {
		cnt, ok := -1, true
		for _, line := range lines {
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if len(line) == 0 {
				continue
			}
			n := bytes.Count(line, []byte{cand})
			if cnt < 0 {
				cnt = n
				continue
			}
			if n != cnt {
				ok = false
				break
			}
		}
		if ok && cnt > bestCnt {
			best, bestCnt = cand, cnt
		}
	}
	if best == 0 {
		return 0, ErrDelimiter
	}
	return best, nil
}

// TypeCode maps a release filename to its one-character version code.
// Precedence is fixed; the first matching substring wins.
//
//	three_year → a, one_year → b, public_{lar,panel,ts} → c,
//	nationwide → d, mlar → e
func TypeCode(filename string) (byte, error) {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(name, "three_year"):
		return 'a', nil
	case strings.Contains(name, "one_year"):
		return 'b', nil
	case strings.Contains(name, "public_lar"),
		strings.Contains(name, "public_panel"),
		strings.Contains(name, "public_ts"):
		return 'c', nil
	case strings.Contains(name, "nationwide"):
		return 'd', nil
	case strings.Contains(name, "mlar"):
		return 'e', nil
	}
	return 0, fmt.Errorf("%w: %s", ErrFileType, filename)
}

// BuildIndex returns the HMDAIndex for a row: {year}{code}_{row zero-padded
// to 9 digits}, e.g. BuildIndex(1, 2018, 'a') = "2018a_000000001".
// Applied only to loan-level data from 2017 on.
func BuildIndex(row, year int, code byte) string {
	return fmt.Sprintf("%d%c_%09d", year, code, row)
}

// Stem normalizes an archive path to the output table/file stem: base name,
// archive and data extensions stripped, lower case, separators collapsed
// to underscores.
func Stem(archive string) string {
	s := strings.ToLower(filepath.Base(archive))
	for _, ext := range []string{".zip", ".txt", ".csv", ".dat"} {
		s = strings.TrimSuffix(s, ext)
	}
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// Rank orders version codes by authority within a year; higher is more
// authoritative. The public snapshot leads, then the one-year and
// three-year re-releases; the header-poor modified LAR and the legacy
// national archive trail everything else.
func Rank(code byte) int {
	switch code {
	case 'c': // public snapshot
		return 5
	case 'b': // one-year
		return 4
	case 'a': // three-year
		return 3
	case 'e': // modified LAR
		return 2
	case 'd': // nationwide/legacy
		return 1
	}
	return 0
}

// Master returns the most authoritative code among those present for a
// year, 0 when codes is empty.
func Master(codes []byte) byte {
	var best byte
	for _, c := range codes {
		if Rank(c) > Rank(best) {
			best = c
		}
	}
	return best
}

// Dataset distinguishes the three record families a release carries.
type Dataset int

const (
	Loans Dataset = iota // loan application register
	Panel                // lender panel
	TS                   // transmittal sheet
)

func (d Dataset) String() string {
	switch d {
	case Panel:
		return "panel"
	case TS:
		return "ts"
	}
	return "loans"
}

// Matches reports whether an archive belongs to this dataset, from its
// filename. Panel and transmittal-sheet releases name themselves; loan
// archives are everything else.
func (d Dataset) Matches(archive string) bool {
	name := strings.ToLower(filepath.Base(archive))
	isPanel := strings.Contains(name, "panel")
	isTS := strings.Contains(name, "_ts_") || strings.Contains(name, "transmittal") ||
		strings.HasSuffix(strings.TrimSuffix(name, ".zip"), "_ts")
	switch d {
	case Panel:
		return isPanel
	case TS:
		return isTS
	}
	return !isPanel && !isTS
}
