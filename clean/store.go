package clean

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/invertedv/chutils"
	"github.com/sirupsen/logrus"
)

// BuildTable runs the cleaning pipeline over one silver table and writes
// the result to outTable. Every column travels as text: the pipeline's
// numeric steps parse what they need, and a value they cannot parse
// passes through untouched. The output is built in a side table and
// renamed into place, so a failed run leaves any prior clean table alone.
func BuildTable(p *Pipeline, con *chutils.Connect, silverTable, outTable string) (Metadata, error) {
	cols, err := columnsOf(con, silverTable)
	if err != nil {
		return Metadata{}, err
	}

	t, err := load(con, silverTable, cols)
	if err != nil {
		return Metadata{}, err
	}
	md := p.Run(t)
	logrus.WithFields(logrus.Fields{
		"table": silverTable,
		"in":    md.In,
		"out":   len(t.Rows),
	}).Info(md.String())

	if err := write(con, outTable, t); err != nil {
		return md, err
	}
	return md, nil
}

// load reads a silver table into an in-memory Table, one string cell per
// value, null preserved.
func load(con *chutils.Connect, table string, cols []string) (*Table, error) {
	sel := make([]string, 0, len(cols))
	for _, c := range cols {
		sel = append(sel, fmt.Sprintf("toString(%s) AS %s", c, c))
	}
	rows, err := con.Query(fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), table))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	t := &Table{Cols: append([]string{}, cols...)}
	for rows.Next() {
		cells := make([]*string, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]any, len(cols))
		for i, c := range cells {
			if c == nil {
				continue
			}
			row[i] = *c
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

// write publishes a cleaned Table: all-string side table, batched
// inserts, rename into place.
func write(con *chutils.Connect, outTable string, t *Table) error {
	tmp := outTable + "_new"
	if _, err := con.Exec("DROP TABLE IF EXISTS " + tmp); err != nil {
		return err
	}

	defs := make([]string, 0, len(t.Cols))
	for _, c := range t.Cols {
		defs = append(defs, c+" Nullable(String)")
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n) ENGINE = MergeTree()\nORDER BY tuple()",
		tmp, strings.Join(defs, ",\n  "))
	if _, err := con.Exec(ddl); err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	const batch = 50000
	for lo := 0; lo < len(t.Rows); lo += batch {
		hi := lo + batch
		if hi > len(t.Rows) {
			hi = len(t.Rows)
		}
		vals := make([]string, 0, hi-lo)
		for _, row := range t.Rows[lo:hi] {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = sqlLit(v)
			}
			vals = append(vals, "("+strings.Join(cells, ",")+")")
		}
		qry := fmt.Sprintf("INSERT INTO %s VALUES %s", tmp, strings.Join(vals, ","))
		if _, err := con.Exec(qry); err != nil {
			_, _ = con.Exec("DROP TABLE IF EXISTS " + tmp)
			return fmt.Errorf("inserting into %s: %w", tmp, err)
		}
	}

	if _, err := con.Exec("DROP TABLE IF EXISTS " + outTable); err != nil {
		return err
	}
	if _, err := con.Exec(fmt.Sprintf("RENAME TABLE %s TO %s", tmp, outTable)); err != nil {
		return fmt.Errorf("publishing %s: %w", outTable, err)
	}
	return nil
}

// sqlLit renders one cell as a SQL literal.
func sqlLit(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(strings.ReplaceAll(x, `\`, `\\`), "'", `\'`) + "'"
	case float64:
		return "'" + strconv.FormatFloat(x, 'f', -1, 64) + "'"
	case int64:
		return "'" + strconv.FormatInt(x, 10) + "'"
	}
	return "NULL"
}

// columnsOf lists a table's columns in position order.
func columnsOf(con *chutils.Connect, table string) ([]string, error) {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("table %s must be database-qualified", table)
	}
	qry := fmt.Sprintf("SELECT name AS name FROM system.columns WHERE database = '%s' AND table = '%s' ORDER BY position",
		parts[0], parts[1])
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
	return out, rows.Err()
}
