// Package silver builds the harmonized layer: one typed ClickHouse table
// per bronze table, partitioned by (activity_year, file_type). Each era's
// rule-set is rendered into a SELECT expression per column — rename,
// band recode, Exempt sentinel, NA tokens to null, non-strict numeric
// narrowing, rescale, geographic standardization — and run server-side as
// an INSERT ... SELECT. Output numerics are Nullable, so a failed cast is
// a null, never an error.
package silver

import (
	"fmt"
	"strings"

	"github.com/invertedv/chutils"
	s "github.com/invertedv/chutils/sql"
	"github.com/sirupsen/logrus"

	"github.com/invertedv/hmda/config"
	"github.com/invertedv/hmda/eras"
	"github.com/invertedv/hmda/source"
)

// Build harmonizes every bronze table of ds for the years [minYear,
// maxYear]. With replace, all silver tables of the dataset are dropped
// first — regeneration is coarse, per dataset, not per partition. A bad
// table is logged and skipped; partitions are independent.
func Build(ds source.Dataset, minYear, maxYear int, replace bool, cfg *config.Config, con *chutils.Connect) error {
	if replace {
		if err := dropDataset(ds, cfg, con); err != nil {
			return err
		}
	}
	for year := minYear; year <= maxYear; year++ {
		stems, err := Tables(con, cfg.BronzeDb, ds, year)
		if err != nil {
			return err
		}
		for _, stem := range stems {
			if e := buildTable(stem, ds, year, replace, cfg, con); e != nil {
				logrus.WithFields(logrus.Fields{"table": stem, "year": year}).Error(e)
			}
		}
	}
	return nil
}

// buildTable renders and runs the harmonization of one bronze table.
func buildTable(stem string, ds source.Dataset, year int, replace bool, cfg *config.Config, con *chutils.Connect) (err error) {
	table := cfg.SilverDb + "." + stem
	exists, err := tableExists(con, cfg.SilverDb, stem)
	if err != nil {
		return err
	}
	if exists && !replace {
		logrus.WithField("table", table).Info("silver table exists, skipping")
		return nil
	}

	rules := eras.ForDataset(ds, year)
	cols, err := bronzeColumns(con, cfg.BronzeDb, stem)
	if err != nil {
		return err
	}
	exprs := Exprs(rules, cols, year)

	if _, err = con.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return err
	}
	if _, err = con.Exec(DDL(table, exprs, rules)); err != nil {
		return fmt.Errorf("creating %s: %w", table, err)
	}

	qry := SelectQuery(exprs, cfg.BronzeDb+"."+stem)
	rdr := s.NewReader(qry, con)
	rdr.Name = table
	if err = rdr.Init("file_type", chutils.MergeTree); err != nil {
		return err
	}
	defer func() {
		if e := rdr.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if err = rdr.Insert(); err != nil {
		return fmt.Errorf("populating %s: %w", table, err)
	}
	logrus.WithFields(logrus.Fields{"table": table, "era": rules.Name}).Info("silver table built")

	if len(rules.TractSidecars) > 0 {
		tExists, e := tableExists(con, cfg.BronzeDb, stem+"_tract")
		if e != nil {
			return e
		}
		if tExists {
			return buildSidecar(stem, year, cfg, con)
		}
	}
	return nil
}

// buildSidecar types and dedups the 2007-2017 tract statistics into the
// (activity_year, census_tract)-keyed sidecar table.
func buildSidecar(stem string, year int, cfg *config.Config, con *chutils.Connect) (err error) {
	table := cfg.SilverDb + "." + stem + "_tract"

	cols := make([]string, 0, len(eras.TractSchema))
	sel := make([]string, 0, len(eras.TractSchema))
	for _, f := range eras.TractSchema {
		switch f.Name {
		case "activity_year":
			cols = append(cols, "activity_year Int16")
			sel = append(sel, fmt.Sprintf("coalesce(toInt16OrNull(trimBoth(as_of_year)), toInt16(%d)) AS activity_year", year))
		case "census_tract":
			cols = append(cols, "census_tract Nullable(String)")
			sel = append(sel, tractPre2018Expr("state_code", "county_code", "census_tract_number")+" AS census_tract")
		default:
			cols = append(cols, fmt.Sprintf("%s %s", f.Name, f.Kind.Ch()))
			sel = append(sel, castExpr(f.Kind, naNull("trimBoth("+f.Name+")"))+" AS "+f.Name)
		}
	}

	if _, err = con.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return err
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n) ENGINE = MergeTree\nPARTITION BY activity_year\nORDER BY activity_year",
		table, strings.Join(cols, ",\n  "))
	if _, err = con.Exec(ddl); err != nil {
		return fmt.Errorf("creating %s: %w", table, err)
	}

	qry := fmt.Sprintf("SELECT DISTINCT\n  %s\nFROM %s.%s_tract",
		strings.Join(sel, ",\n  "), cfg.BronzeDb, stem)
	rdr := s.NewReader(qry, con)
	rdr.Name = table
	if err = rdr.Init("activity_year", chutils.MergeTree); err != nil {
		return err
	}
	defer func() {
		if e := rdr.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if err = rdr.Insert(); err != nil {
		return fmt.Errorf("populating %s: %w", table, err)
	}
	logrus.WithField("table", table).Info("tract sidecar built")
	return nil
}

// colExpr is one column of the harmonized select list.
type colExpr struct {
	Name string
	Expr string
}

// Exprs maps a bronze header to the harmonized select list: renamed,
// recoded, cast columns in bronze order, with activity_year injected when
// the source never carried a year column.
func Exprs(rules *eras.Rules, bronzeCols []string, year int) []colExpr {
	seen := map[string]bool{}
	out := make([]colExpr, 0, len(bronzeCols))
	for _, c := range bronzeCols {
		if rules.Dropped(c) {
			continue
		}
		h := rules.Rename(c)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, colExpr{Name: h, Expr: exprFor(rules, c, h)})
	}
	if !seen["activity_year"] {
		seen["activity_year"] = true
		out = append(out, colExpr{Name: "activity_year", Expr: fmt.Sprintf("toInt16(%d)", year)})
	}
	// every schema column materializes, null when the source lacks it, so
	// downstream queries see one fixed layout per era
	for _, f := range rules.Schema {
		if !seen[f.Name] {
			out = append(out, colExpr{Name: f.Name, Expr: fmt.Sprintf("CAST(NULL AS %s)", f.Kind.Ch())})
		}
	}
	return out
}

// exprFor renders the SELECT expression deriving harmonized column h from
// bronze column c.
func exprFor(rules *eras.Rules, c, h string) string {
	// metadata columns pass through untouched
	if c == "file_type" || c == "HMDAIndex" {
		return c
	}

	x := fmt.Sprintf("trimBoth(%s)", c)
	if eras.IsExemptColumn(h) {
		x = fmt.Sprintf("if(%s = 'Exempt', '%s', %s)", x, eras.ExemptSentinel, x)
	}
	if rc, ok := rules.Recodes[h]; ok {
		x = transformExpr(x, rc)
	}

	// geographic standardization, era-dependent
	pre2018 := rules.Name != "post2018"
	switch h {
	case "activity_year":
		return fmt.Sprintf("coalesce(toInt16OrNull(%s), toInt16(0))", x)
	case "state_code":
		if pre2018 {
			return fmt.Sprintf("leftPad(%s, 2, '0')", naNull(x))
		}
		return naNull(x)
	case "county_code":
		if pre2018 {
			return countyPre2018Expr(x)
		}
		return fmt.Sprintf("leftPad(%s, 5, '0')", naNull(x))
	case "census_tract":
		if pre2018 {
			return tractPre2018Expr("state_code", "county_code", c)
		}
		return fmt.Sprintf("leftPad(toString(toInt64OrNull(toString(round(toFloat64OrNull(%s))))), 11, '0')", naNull(x))
	case "derived_msa_md":
		return fmt.Sprintf("leftPad(toString(toInt32OrNull(toString(round(toFloat64OrNull(%s))))), 5, '0')", naNull(x))
	}

	x = naNull(x)
	f, known := rules.Schema.Find(h)
	if !known {
		// unknown columns carry through as raw text
		return fmt.Sprintf("coalesce(%s, '')", x)
	}
	x = castExpr(f.Kind, x)
	if m, ok := rules.Rescale[h]; ok {
		x = fmt.Sprintf("(%s) * %d", x, m)
	}
	return x
}

// naNull nulls out the missing-value tokens.
func naNull(x string) string {
	toks := make([]string, 0, len(eras.NATokens))
	for _, t := range eras.NATokens {
		toks = append(toks, "'"+t+"'")
	}
	return fmt.Sprintf("if(%s IN (%s), NULL, %s)", x, strings.Join(toks, ", "), x)
}

// transformExpr renders a band recode as a ClickHouse transform call;
// unlisted values pass through.
func transformExpr(x string, rc eras.Recode) string {
	labels := make([]string, 0, len(rc))
	codes := make([]string, 0, len(rc))
	for _, r := range rc {
		labels = append(labels, "'"+strings.ReplaceAll(r.Label, "'", "\\'")+"'")
		codes = append(codes, "'"+r.Code+"'")
	}
	return fmt.Sprintf("transform(%s, [%s], [%s], %s)",
		x, strings.Join(labels, ", "), strings.Join(codes, ", "), x)
}

// castExpr narrows a string expression to its target kind, null on
// failure. Integer targets go through a float round so decimal-formatted
// integers ("360.0") survive.
func castExpr(k eras.Kind, x string) string {
	switch k {
	case eras.Int16:
		return fmt.Sprintf("toInt16OrNull(toString(round(toFloat64OrNull(%s))))", x)
	case eras.Int32:
		return fmt.Sprintf("toInt32OrNull(toString(round(toFloat64OrNull(%s))))", x)
	case eras.Int64:
		return fmt.Sprintf("toInt64OrNull(toString(round(toFloat64OrNull(%s))))", x)
	case eras.Float64:
		return fmt.Sprintf("toFloat64OrNull(%s)", x)
	}
	return x
}

// countyPre2018Expr builds the 5-digit county FIPS from the 2-digit state
// and 3-digit county codes; counties already carrying the state prefix
// pass through padded.
func countyPre2018Expr(county string) string {
	c := fmt.Sprintf("toInt32OrNull(%s)", naNull(county))
	st := "toInt32OrNull(" + naNull("trimBoth(state_code)") + ")"
	return fmt.Sprintf("if(%s >= 1000, leftPad(toString(%s), 5, '0'), leftPad(toString(%s * 1000 + %s), 5, '0'))",
		c, c, st, c)
}

// tractPre2018Expr reconstructs the 11-digit census tract from the
// pre-2018 decimal encoding: 2-digit state, 3-digit county, and the tract
// number scaled by 100 padded to 6.
func tractPre2018Expr(state, county, tract string) string {
	st := fmt.Sprintf("leftPad(%s, 2, '0')", naNull("trimBoth("+state+")"))
	cty := fmt.Sprintf("substring(%s, 3, 3)", countyPre2018Expr("trimBoth("+county+")"))
	tr := fmt.Sprintf("leftPad(toString(toInt64OrNull(toString(round(toFloat64OrNull(%s) * 100)))), 6, '0')",
		naNull("trimBoth("+tract+")"))
	return fmt.Sprintf("concat(%s, %s, %s)", st, cty, tr)
}

// DDL renders the partitioned silver table definition for a select list.
func DDL(table string, exprs []colExpr, rules *eras.Rules) string {
	cols := make([]string, 0, len(exprs))
	orderBy := "(activity_year, file_type)"
	for _, ce := range exprs {
		cols = append(cols, fmt.Sprintf("%s %s", ce.Name, chType(rules, ce.Name)))
		if ce.Name == "HMDAIndex" {
			orderBy = "HMDAIndex"
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n) ENGINE = MergeTree\nPARTITION BY (activity_year, file_type)\nORDER BY %s",
		table, strings.Join(cols, ",\n  "), orderBy)
}

// chType picks the ClickHouse column type for a harmonized column. The
// partition and key columns are the only non-nullable ones.
func chType(rules *eras.Rules, name string) string {
	switch name {
	case "activity_year":
		return "Int16"
	case "file_type":
		return "LowCardinality(String)"
	case "HMDAIndex":
		return "String"
	}
	if f, ok := rules.Schema.Find(name); ok {
		return f.Kind.Ch()
	}
	return "String"
}

// SelectQuery renders the harmonizing SELECT over a bronze table.
func SelectQuery(exprs []colExpr, fromTable string) string {
	sel := make([]string, 0, len(exprs))
	for _, ce := range exprs {
		sel = append(sel, fmt.Sprintf("%s AS %s", ce.Expr, ce.Name))
	}
	return fmt.Sprintf("SELECT\n  %s\nFROM %s", strings.Join(sel, ",\n  "), fromTable)
}

// Tables lists the tables of a dataset for one year in a database,
// tract sidecar tables excluded.
func Tables(con *chutils.Connect, db string, ds source.Dataset, year int) ([]string, error) {
	qry := fmt.Sprintf("SELECT name AS name FROM system.tables WHERE database = '%s' AND name LIKE '%%%d%%' ORDER BY name", db, year)
	rows, err := con.Query(qry)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if e := rows.Scan(&name); e != nil {
			return nil, e
		}
		if strings.HasSuffix(name, "_tract") || !ds.Matches(name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// bronzeColumns lists a bronze table's columns in position order.
func bronzeColumns(con *chutils.Connect, db, table string) ([]string, error) {
	qry := fmt.Sprintf("SELECT name AS name FROM system.columns WHERE database = '%s' AND table = '%s' ORDER BY position", db, table)
	rows, err := con.Query(qry)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if e := rows.Scan(&name); e != nil {
			return nil, e
		}
		out = append(out, name)
	}
	return out, nil
}

// dropDataset drops every silver table belonging to ds.
func dropDataset(ds source.Dataset, cfg *config.Config, con *chutils.Connect) error {
	qry := fmt.Sprintf("SELECT name AS name FROM system.tables WHERE database = '%s' ORDER BY name", cfg.SilverDb)
	rows, err := con.Query(qry)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if e := rows.Scan(&name); e != nil {
			_ = rows.Close()
			return e
		}
		names = append(names, name)
	}
	_ = rows.Close()

	for _, name := range names {
		base := strings.TrimSuffix(name, "_tract")
		if !ds.Matches(base) {
			continue
		}
		if _, e := con.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", cfg.SilverDb, name)); e != nil {
			return e
		}
		logrus.WithField("table", name).Info("dropped silver table")
	}
	return nil
}

// tableExists checks system.tables.
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
