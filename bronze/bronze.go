// Package bronze builds the raw layer: one all-string ClickHouse table per
// source archive, named after the normalized archive stem. The only
// transformations applied here are structural: delimiter detection, header
// narrowing, the file_type tag and, for post-2017 loan data, the HMDAIndex
// row identifier. Everything semantic is deferred to the silver layer.
package bronze

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/invertedv/chutils"
	"github.com/invertedv/chutils/file"
	"github.com/invertedv/chutils/nested"
	s "github.com/invertedv/chutils/sql"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/invertedv/hmda/config"
	"github.com/invertedv/hmda/eras"
	"github.com/invertedv/hmda/source"
)

// Build loads every archive of ds for the years [minYear, maxYear] found in
// cfg.RawDir. Archives already materialized are skipped unless replace.
// Archives have no shared mutable state, so they are loaded in parallel,
// cfg.NConcur at a time; a bad archive is logged and skipped, it never
// stops the year loop.
func Build(ds source.Dataset, minYear, maxYear int, replace bool, cfg *config.Config, con *chutils.Connect) error {
	for year := minYear; year <= maxYear; year++ {
		archives, err := findArchives(cfg.RawDir, ds, year)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", cfg.RawDir, err)
		}
		if len(archives) == 0 {
			logrus.WithFields(logrus.Fields{"dataset": ds.String(), "year": year}).
				Debug("no archives found")
			continue
		}

		var g errgroup.Group
		g.SetLimit(cfg.NConcur)
		for _, archive := range archives {
			archive := archive
			g.Go(func() error {
				if e := loadArchive(archive, ds, year, replace, cfg, con); e != nil {
					logrus.WithFields(logrus.Fields{
						"archive": filepath.Base(archive),
						"year":    year,
					}).Error(e)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return nil
}

// findArchives lists the zip archives of ds mentioning year.
func findArchives(dir string, ds source.Dataset, year int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".zip") {
			continue
		}
		if !strings.Contains(name, strconv.Itoa(year)) || !ds.Matches(name) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// loadArchive materializes one archive as a bronze table. The index
// counter makes row order significant, so each archive gets exactly one
// reader; parallelism lives at the archive level in Build.
func loadArchive(archive string, ds source.Dataset, year int, replace bool, cfg *config.Config, con *chutils.Connect) (err error) {
	base := filepath.Base(archive)
	code, err := source.TypeCode(base)
	if err != nil {
		return err
	}
	stem := source.Stem(base)
	table := cfg.BronzeDb + "." + stem

	exists, err := tableExists(con, cfg.BronzeDb, stem)
	if err != nil {
		return err
	}
	if exists && !replace {
		logrus.WithField("table", table).Info("bronze table exists, skipping")
		return nil
	}

	rawFile, err := extract(archive, cfg.RawDir)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", base, err)
	}

	f, err := os.Open(rawFile)
	if err != nil {
		return err
	}
	delim, header, err := sniff(f, ds)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", base, err)
	}

	rules := eras.ForDataset(ds, year)
	td := eras.RawTableDef(header, header[0])
	for _, fd := range td.FieldDefs {
		if rules.Dropped(fd.Name) {
			fd.Drop = true
		}
	}

	rdr := file.NewReader(rawFile, rune(delim), '\n', '"', 0, 1, 0, f, 6000000)
	rdr.Skip = 1
	defer func() {
		if e := rdr.Close(); e != nil && err == nil {
			err = e
		}
	}()
	rdr.SetTableSpec(td)

	ld := &loader{year: year, code: code}
	withIndex := ds == source.Loans && year >= 2017
	calcs := []nested.NewCalcFn{ld.fileTypeField}
	if withIndex {
		calcs = append(calcs, ld.indexField)
	}
	rn, err := nested.NewReader(rdr, xtraFields(withIndex), calcs)
	if err != nil {
		return err
	}
	if err = rn.TableSpec().Check(); err != nil {
		return err
	}
	if err = rn.TableSpec().Create(con, table); err != nil {
		return err
	}

	wrtrs, err := s.Wrtrs(table, 1, con)
	if err != nil {
		return err
	}
	if err = chutils.Concur(1, []chutils.Input{rn}, wrtrs, 500000); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"table": table,
		"year":  year,
		"rows":  ld.row,
	}).Info("bronze table loaded")

	if len(rules.TractSidecars) > 0 {
		if err = loadSidecar(rawFile, stem, header, delim, rules, cfg, con); err != nil {
			return fmt.Errorf("tract sidecar for %s: %w", stem, err)
		}
	}

	if !cfg.KeepRaw {
		if e := os.Remove(rawFile); e != nil {
			logrus.Warn(e)
		}
	}
	return nil
}

// loadSidecar writes the raw tract-sidecar table for the 2007-2017 era:
// the geographic key columns plus the seven per-tract statistics, every
// other column dropped. Silver dedups and types it.
func loadSidecar(rawFile, stem string, header []string, delim byte, rules *eras.Rules, cfg *config.Config, con *chutils.Connect) (err error) {
	keep := map[string]bool{
		"as_of_year":          true,
		"state_code":          true,
		"county_code":         true,
		"census_tract_number": true,
	}
	for _, c := range rules.TractSidecars {
		keep[c] = true
	}

	f, err := os.Open(rawFile)
	if err != nil {
		return err
	}
	td := eras.RawTableDef(header, header[0])
	for _, fd := range td.FieldDefs {
		if !keep[fd.Name] {
			fd.Drop = true
		}
	}

	rdr := file.NewReader(rawFile, rune(delim), '\n', '"', 0, 1, 0, f, 6000000)
	rdr.Skip = 1
	defer func() {
		if e := rdr.Close(); e != nil && err == nil {
			err = e
		}
	}()
	rdr.SetTableSpec(td)

	table := cfg.BronzeDb + "." + stem + "_tract"
	if err = rdr.TableSpec().Create(con, table); err != nil {
		return err
	}
	wrtrs, err := s.Wrtrs(table, 1, con)
	if err != nil {
		return err
	}
	return chutils.Concur(1, []chutils.Input{rdr}, wrtrs, 500000)
}

// loader holds the per-archive state the nested calc fields close over.
type loader struct {
	year int
	code byte
	row  int
}

// fileTypeField tags every row with the release-version code.
func (l *loader) fileTypeField(td *chutils.TableDef, data chutils.Row, valid chutils.Valid, validate bool) (interface{}, error) {
	return string(l.code), nil
}

// indexField assigns the durable per-row HMDAIndex, numbering from 1 in
// file order.
func (l *loader) indexField(td *chutils.TableDef, data chutils.Row, valid chutils.Valid, validate bool) (interface{}, error) {
	l.row++
	return source.BuildIndex(l.row, l.year, l.code), nil
}

// xtraFields defines the metadata columns added to every bronze table.
func xtraFields(withIndex bool) []*chutils.FieldDef {
	ftfd := &chutils.FieldDef{
		Name:        "file_type",
		ChSpec:      chutils.ChField{Base: chutils.ChString, Funcs: chutils.OuterFuncs{chutils.OuterLowCardinality}},
		Description: "release version: a=three-year, b=one-year, c=snapshot, d=nationwide, e=modified LAR",
		Legal:       chutils.NewLegalValues(),
		Missing:     "!",
	}
	if !withIndex {
		return []*chutils.FieldDef{ftfd}
	}
	ixfd := &chutils.FieldDef{
		Name:        "HMDAIndex",
		ChSpec:      chutils.ChField{Base: chutils.ChString},
		Description: "durable row id: {year}{file_type}_{row, 9 digits}",
		Legal:       chutils.NewLegalValues(),
		Missing:     "!",
	}
	return []*chutils.FieldDef{ftfd, ixfd}
}

// readHeader parses the first line of the sample into normalized column
// names: lower case, quotes and BOM stripped, separators collapsed to
// underscores, panel legacy names renamed.
// sniff samples the head of an open file for the delimiter and header,
// then rewinds it for the reader that takes the file over.
func sniff(f *os.File, ds source.Dataset) (byte, []string, error) {
	sample := make([]byte, source.SampleSize)
	n, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return 0, nil, err
	}
	delim, err := source.Delimiter(sample[:n])
	if err != nil {
		return 0, nil, err
	}
	header, err := readHeader(sample[:n], delim, ds)
	if err != nil {
		return 0, nil, err
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return 0, nil, err
	}
	return delim, header, nil
}

func readHeader(sample []byte, delim byte, ds source.Dataset) ([]string, error) {
	ix := strings.IndexByte(string(sample), '\n')
	if ix < 0 {
		return nil, fmt.Errorf("no header line in sample")
	}
	line := strings.TrimSuffix(string(sample[:ix]), "\r")
	cols := strings.Split(line, string(delim))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		c = strings.Trim(c, "\"\uFEFF ")
		c = strings.ToLower(c)
		c = strings.ReplaceAll(c, "-", "_")
		c = strings.ReplaceAll(c, " ", "_")
		if ds == source.Panel {
			if r, ok := eras.PanelRenames[c]; ok {
				c = r
			}
		}
		if c == "" {
			return nil, fmt.Errorf("empty column name in header")
		}
		out = append(out, c)
	}
	return out, nil
}

// tableExists checks system.tables for an existing bronze table.
func tableExists(con *chutils.Connect, db, table string) (bool, error) {
	qry := fmt.Sprintf("SELECT count(*) AS n FROM system.tables WHERE database = '%s' AND name = '%s'", db, table)
	rows, err := con.Query(qry)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	var n int64
	for rows.Next() {
		if e := rows.Scan(&n); e != nil {
			return false, e
		}
	}
	return n > 0, nil
}

// extract unpacks the data member of a zip archive next to it and returns
// the extracted path. HMDA archives carry one delimited file plus, in some
// years, a readme; the largest member is the data.
func extract(archive, destDir string) (string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", err
	}
	defer func() { _ = zr.Close() }()

	var data *zip.File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if data == nil || zf.UncompressedSize64 > data.UncompressedSize64 {
			data = zf
		}
	}
	if data == nil {
		return "", fmt.Errorf("archive %s has no file members", filepath.Base(archive))
	}

	dest := filepath.Join(destDir, filepath.Base(data.Name))
	in, err := data.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return "", err
	}
	if err = out.Close(); err != nil {
		return "", err
	}
	return dest, nil
}
