package match

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/invertedv/chutils"

	"github.com/invertedv/hmda/eras"
)

// ChStore persists crosswalk snapshots as ClickHouse tables, one per
// round: {db}.crosswalk_round{N}. A snapshot is built in a side table and
// renamed into place, so a failed round leaves the prior snapshot intact.
type ChStore struct {
	Db  string
	Con *chutils.Connect
}

func (st *ChStore) table(round int) string {
	return fmt.Sprintf("%s.crosswalk_round%d", st.Db, round)
}

const crosswalkDDL = `
CREATE TABLE %s (
  HMDAIndex_s String,
  HMDAIndex_p String,
  match_round Int16,
  i_secondary UInt8
)
ENGINE = MergeTree()
ORDER BY (HMDAIndex_s, HMDAIndex_p)
`

// Save writes the accumulated crosswalk for a round.
func (st *ChStore) Save(round int, cw Crosswalk) error {
	tmp := st.table(round) + "_new"
	final := st.table(round)

	if _, err := st.Con.Exec("DROP TABLE IF EXISTS " + tmp); err != nil {
		return fmt.Errorf("dropping %s: %w", tmp, err)
	}
	if _, err := st.Con.Exec(fmt.Sprintf(crosswalkDDL, tmp)); err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	const batch = 50000
	for lo := 0; lo < len(cw); lo += batch {
		hi := lo + batch
		if hi > len(cw) {
			hi = len(cw)
		}
		vals := make([]string, 0, hi-lo)
		for _, e := range cw[lo:hi] {
			sec := 0
			if e.Secondary {
				sec = 1
			}
			vals = append(vals, fmt.Sprintf("('%s','%s',%d,%d)", e.S, e.P, e.Round, sec))
		}
		qry := fmt.Sprintf("INSERT INTO %s VALUES %s", tmp, strings.Join(vals, ","))
		if _, err := st.Con.Exec(qry); err != nil {
			// abandon the side table: nothing partial is published
			_, _ = st.Con.Exec("DROP TABLE IF EXISTS " + tmp)
			return fmt.Errorf("inserting crosswalk round %d: %w", round, err)
		}
	}

	if _, err := st.Con.Exec("DROP TABLE IF EXISTS " + final); err != nil {
		return fmt.Errorf("dropping %s: %w", final, err)
	}
	if _, err := st.Con.Exec(fmt.Sprintf("RENAME TABLE %s TO %s", tmp, final)); err != nil {
		return fmt.Errorf("publishing %s: %w", final, err)
	}
	return nil
}

// Load reads a round's snapshot.
func (st *ChStore) Load(round int) (Crosswalk, error) {
	rows, err := st.Con.Query(
		"SELECT HMDAIndex_s, HMDAIndex_p, match_round, i_secondary FROM " + st.table(round))
	if err != nil {
		return nil, fmt.Errorf("loading crosswalk round %d: %w", round, err)
	}
	defer func() { _ = rows.Close() }()

	var cw Crosswalk
	for rows.Next() {
		var e Entry
		var sec uint8
		if err := rows.Scan(&e.S, &e.P, &e.Round, &sec); err != nil {
			return nil, err
		}
		e.Secondary = sec == 1
		cw = append(cw, e)
	}
	return cw, rows.Err()
}

// poolCols is the column list LoadPools reads, in scan order.
var poolCols = []string{
	"HMDAIndex", "activity_year", "lei",
	"action_taken", "purchaser_type", "loan_type", "loan_purpose",
	"occupancy_type", "lien_status", "total_units",
	"construction_method", "open_end_line_of_credit", "conforming_loan_limit",
	"loan_amount", "income", "interest_rate", "loan_term", "property_value",
	"rate_spread", "intro_rate_period", "prepayment_penalty_term",
	"total_loan_costs", "total_points_and_fees", "origination_charges",
	"discount_points", "lender_credits",
	"census_tract", "county_code",
	"applicant_race_1", "applicant_race_2", "applicant_race_3", "applicant_race_4", "applicant_race_5",
	"co_applicant_race_1", "co_applicant_race_2", "co_applicant_race_3", "co_applicant_race_4", "co_applicant_race_5",
	"applicant_ethnicity_1", "applicant_ethnicity_2", "applicant_ethnicity_3", "applicant_ethnicity_4", "applicant_ethnicity_5",
	"co_applicant_ethnicity_1", "co_applicant_ethnicity_2", "co_applicant_ethnicity_3", "co_applicant_ethnicity_4", "co_applicant_ethnicity_5",
	"applicant_sex", "co_applicant_sex", "applicant_age", "co_applicant_age",
}

func nf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func ni(v sql.NullInt64) int {
	if !v.Valid {
		return 0
	}
	return int(v.Int64)
}

// conformingCode maps the stored conforming_loan_limit to the matcher's
// coding: NC (stored 0) becomes 2 so 0 can keep meaning missing; the
// U/NA sentinels are missing too.
func conformingCode(v sql.NullInt64) int {
	if !v.Valid {
		return 0
	}
	switch v.Int64 {
	case 0:
		return 2
	case 1:
		return 1
	}
	return 0
}

func ns(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

// LoadPools reads the seller (action_taken=1, sold) and purchaser
// (action_taken=6) pools from the silver loans table for a year range,
// scrubbing the missing-value sentinels on the way in.
func LoadPools(con *chutils.Connect, loansTable string, minYear, maxYear int) (sellers, purchasers []Loan, err error) {
	qry := fmt.Sprintf(`SELECT %s FROM %s
WHERE action_taken IN (1, 6) AND purchaser_type IS NOT NULL
  AND activity_year >= %d AND activity_year <= %d`,
		strings.Join(poolCols, ", "), loansTable, minYear, maxYear)

	rows, err := con.Query(qry)
	if err != nil {
		return nil, nil, fmt.Errorf("loading match pools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			l                           Loan
			year                        sql.NullInt64
			action, ptype, ltype, lpurp sql.NullInt64
			occ, lien, units            sql.NullInt64
			cm, oel, conf               sql.NullInt64
			amt, inc, rate, term, pv    sql.NullFloat64
			spread, intro, ppen         sql.NullFloat64
			tlc, tpf, oc, dp, lc        sql.NullFloat64
			tract, county               sql.NullString
			race, coRace, eth, coEth    [5]sql.NullInt64
			sex, coSex, age, coAge      sql.NullInt64
		)
		if err := rows.Scan(&l.Index, &year, &l.LEI,
			&action, &ptype, &ltype, &lpurp, &occ, &lien, &units,
			&cm, &oel, &conf,
			&amt, &inc, &rate, &term, &pv, &spread, &intro, &ppen,
			&tlc, &tpf, &oc, &dp, &lc, &tract, &county,
			&race[0], &race[1], &race[2], &race[3], &race[4],
			&coRace[0], &coRace[1], &coRace[2], &coRace[3], &coRace[4],
			&eth[0], &eth[1], &eth[2], &eth[3], &eth[4],
			&coEth[0], &coEth[1], &coEth[2], &coEth[3], &coEth[4],
			&sex, &coSex, &age, &coAge); err != nil {
			return nil, nil, err
		}
		l.Year = ni(year)
		l.ActionTaken = ni(action)
		l.PurchaserType = ni(ptype)
		l.LoanType = ni(ltype)
		l.LoanPurpose = ni(lpurp)
		l.OccupancyType = ni(occ)
		l.LienStatus = ni(lien)
		l.TotalUnits = ni(units)
		l.ConstructionMethod = ni(cm)
		l.OpenEndLOC = ni(oel)
		l.ConformingLimit = conformingCode(conf)
		l.LoanAmount = nf(amt)
		l.Income = nf(inc)
		l.InterestRate = nf(rate)
		l.LoanTerm = nf(term)
		l.PropertyValue = nf(pv)
		l.RateSpread = nf(spread)
		l.IntroRatePeriod = nf(intro)
		l.PrepaymentPenaltyTerm = nf(ppen)
		l.TotalLoanCosts = nf(tlc)
		l.TotalPointsAndFees = nf(tpf)
		l.OriginationCharges = nf(oc)
		l.DiscountPoints = nf(dp)
		l.LenderCredits = nf(lc)
		l.CensusTract = ns(tract)
		l.County = ns(county)
		for i := 0; i < 5; i++ {
			l.Race[i] = ni(race[i])
			l.CoRace[i] = ni(coRace[i])
			l.Eth[i] = ni(eth[i])
			l.CoEth[i] = ni(coEth[i])
		}
		l.Sex = ni(sex)
		l.CoSex = ni(coSex)
		l.Age = ni(age)
		l.CoAge = ni(coAge)
		l.Scrub()

		switch l.ActionTaken {
		case 1:
			sellers = append(sellers, l)
		case 6:
			purchasers = append(purchasers, l)
		}
	}
	return sellers, purchasers, rows.Err()
}

// CreatePoolView publishes a union view over the authoritative silver
// loan tables, giving LoadPools and WriteMatchedFile one table to read.
func CreatePoolView(con *chutils.Connect, view string, tables []string) error {
	if len(tables) == 0 {
		return fmt.Errorf("no loan tables for pool view %s", view)
	}
	cols := make([]string, 0, len(eras.Post2018.Schema)+2)
	cols = append(cols, "HMDAIndex", "file_type")
	for _, f := range eras.Post2018.Schema {
		cols = append(cols, f.Name)
	}

	sels := make([]string, 0, len(tables))
	for _, tb := range tables {
		sels = append(sels, fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), tb))
	}
	qry := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", view, strings.Join(sels, "\nUNION ALL\n"))
	if _, err := con.Exec(qry); err != nil {
		return fmt.Errorf("creating pool view %s: %w", view, err)
	}
	return nil
}

// WriteMatchedFile materializes the wide audit table for a round: one row
// per matched pair, seller columns suffixed _s and purchaser columns _p.
func WriteMatchedFile(con *chutils.Connect, matchDb, loansTable string, round int) error {
	sel := make([]string, 0, 2*len(eras.Post2018.Schema)+2)
	sel = append(sel, "cw.match_round", "cw.i_secondary")
	for _, f := range eras.Post2018.Schema {
		sel = append(sel, fmt.Sprintf("s.%s AS %s_s", f.Name, f.Name))
		sel = append(sel, fmt.Sprintf("p.%s AS %s_p", f.Name, f.Name))
	}

	table := fmt.Sprintf("%s.matched_loans_round%d", matchDb, round)
	qry := fmt.Sprintf(`CREATE TABLE %s
ENGINE = MergeTree() ORDER BY (HMDAIndex_s)
AS SELECT cw.HMDAIndex_s, cw.HMDAIndex_p, %s
FROM %s.crosswalk_round%d AS cw
JOIN %s AS s ON s.HMDAIndex = cw.HMDAIndex_s
JOIN %s AS p ON p.HMDAIndex = cw.HMDAIndex_p
ORDER BY cw.HMDAIndex_s`,
		table, strings.Join(sel, ", "), matchDb, round, loansTable, loansTable)

	if _, err := con.Exec("DROP TABLE IF EXISTS " + table); err != nil {
		return fmt.Errorf("dropping %s: %w", table, err)
	}
	if _, err := con.Exec(qry); err != nil {
		return fmt.Errorf("building %s: %w", table, err)
	}
	return nil
}
