package match

import (
	"database/sql"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub(t *testing.T) {
	l := mkLoan("s", 1, func(l *Loan) {
		l.Income = -1111
		l.PropertyValue = 99999
		l.RateSpread = -99999
		l.TotalLoanCosts = -250 // lender credit misfiled as a cost
		l.IntroRatePeriod = 360 // equals the loan term: no fixed period
	})
	l.Scrub()

	assert.True(t, math.IsNaN(l.Income))
	assert.True(t, math.IsNaN(l.PropertyValue))
	assert.True(t, math.IsNaN(l.RateSpread))
	assert.True(t, math.IsNaN(l.TotalLoanCosts))
	assert.True(t, math.IsNaN(l.IntroRatePeriod))

	// legitimate values pass through
	assert.Equal(t, 4.125, l.InterestRate)
	assert.Equal(t, 360.0, l.LoanTerm)
}

func TestScrubNonPositive(t *testing.T) {
	l := mkLoan("s", 1, func(l *Loan) {
		l.Income = -1
		l.PropertyValue = 0
		l.DiscountPoints = -3
		l.LenderCredits = -500
	})
	l.Scrub()

	assert.True(t, math.IsNaN(l.Income))
	assert.True(t, math.IsNaN(l.PropertyValue))
	assert.True(t, math.IsNaN(l.DiscountPoints))
	assert.True(t, math.IsNaN(l.LenderCredits))
	assert.Equal(t, 250000.0, l.LoanAmount)
}

func TestConformingCode(t *testing.T) {
	// NC moves off 0 so 0 keeps meaning missing
	assert.Equal(t, 2, conformingCode(sql.NullInt64{Valid: true}))
	assert.Equal(t, 1, conformingCode(sql.NullInt64{Int64: 1, Valid: true}))
	assert.Equal(t, 0, conformingCode(sql.NullInt64{Int64: 1111, Valid: true}))
	assert.Equal(t, 0, conformingCode(sql.NullInt64{}))
}

func TestCrosswalkSets(t *testing.T) {
	cw := Crosswalk{{S: "sA", P: "pA", Round: 1}, {S: "sB", P: "pB", Round: 2}}
	s, p := cw.Sets()
	assert.True(t, s["sA"] && s["sB"])
	assert.True(t, p["pA"] && p["pB"])
	assert.False(t, s["pA"])
	assert.False(t, p["sA"])
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Load(1)
	assert.Error(t, err)

	cw := Crosswalk{{S: "sA", P: "pA", Round: 1}}
	require.NoError(t, st.Save(1, cw))
	cw[0].P = "mutated" // the saved snapshot must be a copy

	got, err := st.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "pA", got[0].P)
}

// TestEngineRun matches sA/pA on the exact-key first round and sB/pB on
// the cross-year second round, then verifies no later round touches the
// already-matched records: pX shares sA's keys and would pair with it in
// round 2 if sA re-entered the candidate pool.
func TestEngineRun(t *testing.T) {
	sA := mkLoan("sA", 1, nil)
	sB := mkLoan("sB", 1, func(l *Loan) { l.LoanAmount = 180000 })
	pA := mkLoan("pA", 6, nil)
	pB := mkLoan("pB", 6, func(l *Loan) { l.LoanAmount = 180000; l.Year = 2020 })
	pX := mkLoan("pX", 6, func(l *Loan) { l.Year = 2020 })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	e := &Engine{
		Sellers:    []Loan{sA, sB},
		Purchasers: []Loan{pA, pB, pX},
		Log:        log,
	}
	st := NewMemoryStore()
	cw, err := e.Run(st, NRounds)
	require.NoError(t, err)

	require.Len(t, cw, 2)
	assert.Equal(t, Entry{S: "sA", P: "pA", Round: 1}, cw[0])
	assert.Equal(t, Entry{S: "sB", P: "pB", Round: 2}, cw[1])

	// the unmatched decoy stays unmatched
	_, p := cw.Sets()
	assert.False(t, p["pX"])

	// one cumulative snapshot per round
	r1, err := st.Load(1)
	require.NoError(t, err)
	assert.Len(t, r1, 1)
	r8, err := st.Load(NRounds)
	require.NoError(t, err)
	assert.Len(t, r8, 2)
}

func TestEngineRunRoundCount(t *testing.T) {
	e := &Engine{}
	_, err := e.Run(NewMemoryStore(), 0)
	assert.Error(t, err)
	_, err = e.Run(NewMemoryStore(), NRounds+1)
	assert.Error(t, err)
}

func TestLearnRelationships(t *testing.T) {
	var sellers, purchasers []Loan
	var cw Crosswalk
	for i := 0; i < 60; i++ {
		s := mkLoan(buildIdx("s", i), 1, nil)
		p := mkLoan(buildIdx("p", i), 6, nil)
		if i == 0 {
			s.PurchaserType = 3 // 59/60 agreement, under the 99% floor
		}
		sellers = append(sellers, s)
		purchasers = append(purchasers, p)
		cw = append(cw, Entry{S: s.Index, P: p.Index, Round: 5})
	}

	e := &Engine{Sellers: sellers, Purchasers: purchasers}
	rel := e.learnRelationships(cw)
	assert.Empty(t, rel["LEI-S"])

	// unanimous purchaser type clears both thresholds
	e.Sellers[0].PurchaserType = 1
	rel = e.learnRelationships(cw)
	require.Contains(t, rel, "LEI-S")
	assert.Equal(t, 1, rel["LEI-S"]["LEI-P"])
}
