package match

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkLoan builds a loan with compatible defaults; fields the test cares
// about are overridden by fn.
func mkLoan(index string, action int, fn func(*Loan)) Loan {
	l := Loan{
		Index:         index,
		Year:          2019,
		LEI:           "LEI-S",
		ActionTaken:   action,
		PurchaserType: 1,
		LoanType:      1,
		LoanPurpose:   1,
		OccupancyType: 1,
		LoanAmount:    250000,
		Income:        85,
		InterestRate:  4.125,
		LoanTerm:      360,
		PropertyValue: 300000,
		CensusTract:   "06037123456",
		County:        "06037",
		Race:          [5]int{5},
		Eth:           [5]int{2},
		Sex:           1,
		CoSex:         5,
		Age:           3,
		CoAge:         9999,
	}
	l.TotalLoanCosts = 3500
	l.TotalPointsAndFees = math.NaN()
	l.OriginationCharges = math.NaN()
	l.DiscountPoints = math.NaN()
	l.LenderCredits = math.NaN()
	l.RateSpread = math.NaN()
	l.IntroRatePeriod = math.NaN()
	l.PrepaymentPenaltyTerm = math.NaN()
	if action == 6 {
		l.LEI = "LEI-P"
	}
	if fn != nil {
		fn(&l)
	}
	return l
}

func TestTolMatch(t *testing.T) {
	assert.True(t, tolMatch(85, 86, incomeTol))
	assert.False(t, tolMatch(85, 87, incomeTol))
	assert.True(t, tolMatch(4.125, 4.1875, rateTol))
	assert.False(t, tolMatch(4.125, 4.25, rateTol))
	// missing is never evidence against a pair
	assert.True(t, tolMatch(math.NaN(), 4.25, rateTol))
}

func TestFeeAgree(t *testing.T) {
	s := mkLoan("s", 1, nil)
	p := mkLoan("p", 6, nil)
	assert.True(t, feeAgree(&s, &p)) // 3500 == 3500

	p.TotalLoanCosts = 4000
	assert.False(t, feeAgree(&s, &p))

	// no-fee escape: one side reports nothing
	p.TotalLoanCosts = math.NaN()
	assert.True(t, feeAgree(&s, &p))

	// generous: match across different fee buckets
	p.OriginationCharges = 3500
	assert.False(t, feeAgree(&s, &p) && s.TotalLoanCosts == p.TotalLoanCosts)
	assert.True(t, generousFeeAgree(&s, &p))
}

func TestWeakVeto(t *testing.T) {
	s := mkLoan("s1", 1, nil)
	exact := mkLoan("p1", 6, nil)                                  // income 85
	loose := mkLoan("p2", 6, func(l *Loan) { l.Income = 85.8 })    // within ±1 but not ±0.01
	pairs := []pair{{&s, &exact}, {&s, &loose}}

	out := weakVeto(pairs, func(pr pair) float64 {
		return math.Abs(pr.s.Income - pr.p.Income)
	}, weakTol)
	// the tighter competitor vetoes the weak one
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].p.Index)

	// with no better competitor the weak match stands
	s2 := mkLoan("s2", 1, nil)
	pairs = []pair{{&s2, &loose}}
	out = weakVeto(pairs, func(pr pair) float64 {
		return math.Abs(pr.s.Income - pr.p.Income)
	}, weakTol)
	assert.Len(t, out, 1)
}

func TestKeepUniques(t *testing.T) {
	s1 := mkLoan("s1", 1, nil)
	s2 := mkLoan("s2", 1, nil)
	p1 := mkLoan("p1", 6, nil)
	p2 := mkLoan("p2", 6, nil)

	// ambiguous group: s1 maps to two ordinary purchasers
	out := keepUniques([]pair{{&s1, &p1}, {&s1, &p2}, {&s2, &p2}}, true)
	assert.Empty(t, out)

	out = keepUniques([]pair{{&s1, &p1}, {&s2, &p2}}, true)
	assert.Len(t, out, 2)

	// secondary-sale exception: one of the two purchases is a resale
	p3 := mkLoan("p3", 6, func(l *Loan) { l.PurchaserType = 5 })
	out = keepUniques([]pair{{&s1, &p1}, {&s1, &p3}}, false)
	require.Len(t, out, 2)
	nSec := 0
	for _, e := range out {
		if e.Secondary {
			nSec++
			assert.Equal(t, "p3", e.P)
		}
	}
	assert.Equal(t, 1, nSec)

	// without the resale signal the one-to-two group is excluded
	out = keepUniques([]pair{{&s1, &p1}, {&s1, &p2}}, false)
	assert.Empty(t, out)
}

func TestRound1(t *testing.T) {
	e := &Engine{}
	sellers := []Loan{
		mkLoan("2019a_000000001", 1, nil),
		mkLoan("2019a_000000002", 1, func(l *Loan) { l.LoanAmount = 400000 }),
	}
	purchasers := []Loan{
		mkLoan("2019a_000000101", 6, nil),
		mkLoan("2019a_000000102", 6, func(l *Loan) { l.LoanAmount = 400000 }),
		// same key as 101 but hopeless income: still rejected by tolerance
		mkLoan("2019a_000000103", 6, func(l *Loan) { l.Income = 300 }),
	}
	entries := e.round1(sellers, purchasers)
	require.Len(t, entries, 2)
	got := map[string]string{}
	for _, en := range entries {
		got[en.S] = en.P
	}
	assert.Equal(t, "2019a_000000101", got["2019a_000000001"])
	assert.Equal(t, "2019a_000000102", got["2019a_000000002"])
}

func TestRound1SexHardReject(t *testing.T) {
	e := &Engine{}
	sellers := []Loan{mkLoan("s", 1, func(l *Loan) { l.Sex = 1 })}
	purchasers := []Loan{mkLoan("p", 6, func(l *Loan) { l.Sex = 2 })}
	assert.Empty(t, e.round1(sellers, purchasers))
}

func TestRound2CrossYear(t *testing.T) {
	e := &Engine{}
	sellers := []Loan{mkLoan("s", 1, func(l *Loan) { l.Year = 2019 })}
	purchasers := []Loan{mkLoan("p", 6, func(l *Loan) { l.Year = 2020 })}
	// different years: round 1 finds nothing, round 2 does
	assert.Empty(t, e.round1(sellers, purchasers))
	assert.Len(t, e.round2(sellers, purchasers), 1)

	// a sale year after the purchase year is never allowed
	purchasers[0].Year = 2018
	assert.Empty(t, e.round2(sellers, purchasers))
}

func TestRound5AmountFuzz(t *testing.T) {
	e := &Engine{}
	sellers := []Loan{mkLoan("s", 1, func(l *Loan) { l.LoanAmount = 260000 })}
	// purchaser reports 10000 less: only the fuzzy probe reaches it
	purchasers := []Loan{mkLoan("p", 6, func(l *Loan) { l.LoanAmount = 250000 })}
	assert.Empty(t, e.round2(sellers, purchasers))
	assert.Len(t, e.round5(sellers, purchasers), 1)

	// purchaser amount above the seller's is rejected
	purchasers[0].LoanAmount = 270000
	assert.Empty(t, e.round5(sellers, purchasers))

	// known secondary-sale purchasers are excluded from round 5
	purchasers[0].LoanAmount = 250000
	purchasers[0].PurchaserType = 6
	assert.Empty(t, e.round5(sellers, purchasers))
}

func TestRound6Affiliates(t *testing.T) {
	e := &Engine{Affiliates: map[[2]string]bool{{"LEI-S", "LEI-P"}: true}}
	sellers := []Loan{mkLoan("s", 1, func(l *Loan) { l.PurchaserType = 8 })}
	purchasers := []Loan{mkLoan("p", 6, nil)}
	assert.Len(t, e.round6(sellers, purchasers), 1)

	// not an affiliate pair: nothing
	e.Affiliates = nil
	assert.Empty(t, e.round6(sellers, purchasers))

	// not an inter-affiliate sale: nothing
	e.Affiliates = map[[2]string]bool{{"LEI-S", "LEI-P"}: true}
	sellers[0].PurchaserType = 1
	assert.Empty(t, e.round6(sellers, purchasers))
}

func TestRound7Relationships(t *testing.T) {
	e := &Engine{Relationships: map[string]map[string]int{
		"LEI-S": {"LEI-P": 1},
	}}
	sellers := []Loan{mkLoan("s", 1, nil)} // purchaser_type 1 matches the prior
	purchasers := []Loan{mkLoan("p", 6, nil)}
	assert.Len(t, e.round7(sellers, purchasers), 1)

	// prior disagrees on purchaser type
	sellers[0].PurchaserType = 3
	assert.Empty(t, e.round7(sellers, purchasers))

	// unreported purchaser type escapes the prior
	sellers[0].PurchaserType = 0
	assert.Len(t, e.round7(sellers, purchasers), 1)
}

func TestRound8ExcludesUnreported(t *testing.T) {
	e := &Engine{Relationships: map[string]map[string]int{"LEI-S": {"LEI-P": 0}}}
	sellers := []Loan{mkLoan("s", 1, func(l *Loan) { l.PurchaserType = 0 })}
	purchasers := []Loan{mkLoan("p", 6, nil)}
	assert.Empty(t, e.round8(sellers, purchasers))
}

func TestAffiliatePairs(t *testing.T) {
	var cw Crosswalk
	var sellers, purchasers []Loan
	for i := 0; i < 20; i++ {
		s := mkLoan(buildIdx("s", i), 1, func(l *Loan) { l.PurchaserType = 8 })
		p := mkLoan(buildIdx("p", i), 6, nil)
		if i == 0 {
			s.PurchaserType = 1 // 19/20 = 95%
		}
		sellers = append(sellers, s)
		purchasers = append(purchasers, p)
		cw = append(cw, Entry{S: s.Index, P: p.Index, Round: 1})
	}
	aff := AffiliatePairs(cw, sellers, purchasers, 10, 0.95)
	assert.True(t, aff[[2]string{"LEI-S", "LEI-P"}])

	// below the share threshold the pair is rejected
	sellers[1].PurchaserType = 1 // 18/20 = 90%
	aff = AffiliatePairs(cw, sellers, purchasers, 10, 0.95)
	assert.False(t, aff[[2]string{"LEI-S", "LEI-P"}])

	// below the observation floor nothing qualifies
	aff = AffiliatePairs(cw[:5], sellers, purchasers, 10, 0.95)
	assert.Empty(t, aff)
}

// buildIdx is a test helper making distinct indexes.
func buildIdx(side string, i int) string {
	return fmt.Sprintf("%s%03d", side, i)
}

func TestKeyedRoundsSkipMissingKeys(t *testing.T) {
	// two records both missing the amount and tract would otherwise
	// form an exact key out of the missing fields themselves
	s := mkLoan("sMissing", 1, func(l *Loan) {
		l.LoanAmount = math.NaN()
		l.CensusTract = ""
	})
	p := mkLoan("pMissing", 6, func(l *Loan) {
		l.LoanAmount = math.NaN()
		l.CensusTract = ""
	})
	e := &Engine{}
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))
	assert.Empty(t, e.round2([]Loan{s}, []Loan{p}))
	assert.Empty(t, e.round3([]Loan{s}, []Loan{p}))
	assert.Empty(t, e.round5([]Loan{s}, []Loan{p}))

	// a "NA" tract is missing too
	s.LoanAmount, p.LoanAmount = 250000, 250000
	s.CensusTract, p.CensusTract = "NA", "NA"
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))
}

func TestScreenCategoricalAgreement(t *testing.T) {
	e := &Engine{}
	s := mkLoan("s", 1, func(l *Loan) { l.LienStatus = 1 })
	p := mkLoan("p", 6, func(l *Loan) { l.LienStatus = 2 })
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))

	p.LienStatus = 1
	s.TotalUnits, p.TotalUnits = 1, 3
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))

	// missing never counts against a pair
	p.TotalUnits = 0
	assert.Len(t, e.round1([]Loan{s}, []Loan{p}), 1)

	s.ConformingLimit, p.ConformingLimit = 2, 1
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))

	s.ConformingLimit, p.ConformingLimit = 2, 2
	s.OpenEndLOC, p.OpenEndLOC = 2, 1
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))

	p.OpenEndLOC = 2
	s.ConstructionMethod, p.ConstructionMethod = 1, 2
	assert.Empty(t, e.round1([]Loan{s}, []Loan{p}))
}
