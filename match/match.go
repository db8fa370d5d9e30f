// Package match links loan-sale originations (action_taken=1) to the
// purchase records (action_taken=6) the buying institution reports
// independently. HMDA provides no shared loan identifier, so the link is
// inferred over eight rounds of constraint matching: hard-key joins,
// numeric tolerances, categorical equivalence classes and uniqueness
// pruning, each round consuming only the residual the prior rounds left
// unmatched.
package match

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Loan carries the fields the matcher compares. Missing numerics are NaN,
// missing categorical codes 0, missing strings empty.
type Loan struct {
	Index string // HMDAIndex
	Year  int
	LEI   string

	ActionTaken        int
	PurchaserType      int
	LoanType           int
	LoanPurpose        int
	OccupancyType      int
	LienStatus         int
	TotalUnits         int
	ConstructionMethod int
	OpenEndLOC         int
	// conforming_loan_limit with NC carried as 2: its stored code 0
	// collides with the missing-as-0 convention here.
	ConformingLimit int

	LoanAmount            float64
	Income                float64
	InterestRate          float64
	LoanTerm              float64
	PropertyValue         float64
	RateSpread            float64
	IntroRatePeriod       float64
	PrepaymentPenaltyTerm float64

	TotalLoanCosts     float64
	TotalPointsAndFees float64
	OriginationCharges float64
	DiscountPoints     float64
	LenderCredits      float64

	CensusTract string
	County      string

	Race   [5]int
	CoRace [5]int
	Eth    [5]int
	CoEth  [5]int
	Sex    int
	CoSex  int
	Age    int
	CoAge  int
}

func na(x float64) bool { return math.IsNaN(x) }

// fees returns the five fee fields in their fixed order.
func (l *Loan) fees() [5]float64 {
	return [5]float64{l.TotalLoanCosts, l.TotalPointsAndFees, l.OriginationCharges,
		l.DiscountPoints, l.LenderCredits}
}

// sentinels that mean "missing" in the public files
var numSentinels = []float64{-1111, 1111, 99999, -99999}

func scrubValue(v float64) float64 {
	for _, s := range numSentinels {
		if v == s {
			return math.NaN()
		}
	}
	return v
}

// Scrub normalizes the missing-value encodings before matching: numeric
// sentinels and non-positive dollar amounts become NaN, and an
// intro_rate_period equal to the loan term carries no information.
func (l *Loan) Scrub() {
	l.Income = scrubValue(l.Income)
	l.InterestRate = scrubValue(l.InterestRate)
	l.LoanTerm = scrubValue(l.LoanTerm)
	l.PropertyValue = scrubValue(l.PropertyValue)
	l.RateSpread = scrubValue(l.RateSpread)
	l.IntroRatePeriod = scrubValue(l.IntroRatePeriod)
	l.PrepaymentPenaltyTerm = scrubValue(l.PrepaymentPenaltyTerm)

	l.TotalLoanCosts = scrubValue(l.TotalLoanCosts)
	l.TotalPointsAndFees = scrubValue(l.TotalPointsAndFees)
	l.OriginationCharges = scrubValue(l.OriginationCharges)
	l.DiscountPoints = scrubValue(l.DiscountPoints)
	l.LenderCredits = scrubValue(l.LenderCredits)

	// a non-positive amount in any of these is a reporting artifact,
	// not a value to compare on
	for _, p := range []*float64{
		&l.Income, &l.PropertyValue,
		&l.TotalLoanCosts, &l.TotalPointsAndFees, &l.OriginationCharges,
		&l.DiscountPoints, &l.LenderCredits,
	} {
		if *p <= 0 {
			*p = math.NaN()
		}
	}
	if !na(l.IntroRatePeriod) && l.IntroRatePeriod == l.LoanTerm {
		l.IntroRatePeriod = math.NaN()
	}
}

// Entry is one crosswalk row: a sold loan matched to its purchase record
// at a given round. Secondary marks the extra purchaser record of a
// one-to-two match permitted by the secondary-sale exception.
type Entry struct {
	S         string // HMDAIndex of the origination
	P         string // HMDAIndex of the purchase
	Round     int
	Secondary bool
}

// Crosswalk is the accumulated match set across rounds.
type Crosswalk []Entry

// Sets returns the matched seller- and purchaser-side index sets, used to
// anti-join the residual pools for the next round.
func (c Crosswalk) Sets() (s map[string]bool, p map[string]bool) {
	s, p = make(map[string]bool, len(c)), make(map[string]bool, len(c))
	for _, e := range c {
		s[e.S] = true
		p[e.P] = true
	}
	return s, p
}

// Store persists one immutable crosswalk snapshot per round. A failed
// round must persist nothing: a half-written crosswalk would corrupt the
// sequential round dependency.
type Store interface {
	Load(round int) (Crosswalk, error)
	Save(round int, cw Crosswalk) error
}

// MemoryStore is the in-process Store used by tests and dry runs.
type MemoryStore struct {
	rounds map[int]Crosswalk
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{rounds: map[int]Crosswalk{}} }

func (m *MemoryStore) Load(round int) (Crosswalk, error) {
	cw, ok := m.rounds[round]
	if !ok {
		return nil, fmt.Errorf("no crosswalk for round %d", round)
	}
	return cw, nil
}

func (m *MemoryStore) Save(round int, cw Crosswalk) error {
	cp := make(Crosswalk, len(cw))
	copy(cp, cw)
	m.rounds[round] = cp
	return nil
}

// Engine runs the rounds over fixed seller and purchaser pools.
type Engine struct {
	Sellers    []Loan
	Purchasers []Loan

	// Affiliates holds seller-LEI/purchaser-LEI pairs established by the
	// co-occurrence pass; round 6 only accepts pairs listed here.
	Affiliates map[[2]string]bool

	// Relationships is the purchaser-type prior learned from round 5
	// output: seller LEI → purchaser LEI → purchaser_type. Round 7
	// requires candidates to match it (or report purchaser_type 0).
	Relationships map[string]map[string]int

	Log *logrus.Logger
}

// NRounds is the number of matching rounds.
const NRounds = 8

// affiliate-pair screen thresholds: observations needed and the share of
// them reporting inter-affiliate sale
const (
	minAffObs   = 10
	minAffShare = 0.95
)

// residual filters a pool to loans not yet in the crosswalk.
func residual(pool []Loan, matched map[string]bool) []Loan {
	out := make([]Loan, 0, len(pool))
	for _, l := range pool {
		if !matched[l.Index] {
			out = append(out, l)
		}
	}
	return out
}

// Run executes rounds 1..nRounds, accumulating the crosswalk and saving
// one snapshot per round. Each round sees only the residual unmatched on
// both sides, so rounds are monotonic on the residual set.
func (e *Engine) Run(store Store, nRounds int) (Crosswalk, error) {
	if nRounds < 1 || nRounds > NRounds {
		return nil, fmt.Errorf("round count %d out of range 1-%d", nRounds, NRounds)
	}
	log := e.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	rounds := []func([]Loan, []Loan) []Entry{
		e.round1, e.round2, e.round3, e.round4, e.round5, e.round6, e.round7, e.round8,
	}

	var cw Crosswalk
	for n := 1; n <= nRounds; n++ {
		sSet, pSet := cw.Sets()
		sellers := residual(e.Sellers, sSet)
		purchasers := residual(e.Purchasers, pSet)

		entries := rounds[n-1](sellers, purchasers)
		for i := range entries {
			entries[i].Round = n
		}
		cw = append(cw, entries...)

		if err := store.Save(n, cw); err != nil {
			return nil, fmt.Errorf("saving crosswalk round %d: %w", n, err)
		}
		log.WithFields(logrus.Fields{
			"round":      n,
			"new":        len(entries),
			"total":      len(cw),
			"sellers":    len(sellers),
			"purchasers": len(purchasers),
		}).Info("matching round complete")

		// round 5 output seeds the affiliate list round 6 joins on and the
		// relationship prior rounds 7/8 lean on
		if n == 5 {
			if e.Affiliates == nil {
				e.Affiliates = AffiliatePairs(cw, e.Sellers, e.Purchasers, minAffObs, minAffShare)
			}
			if e.Relationships == nil {
				e.Relationships = e.learnRelationships(cw)
			}
		}
	}
	return cw, nil
}

// byIndex indexes a pool by HMDAIndex.
func byIndex(pool []Loan) map[string]*Loan {
	m := make(map[string]*Loan, len(pool))
	for i := range pool {
		m[pool[i].Index] = &pool[i]
	}
	return m
}

// AffiliatePairs finds seller/purchaser LEI pairs that behave like
// affiliates: at least minObs matched observations of which at least
// minShare report inter-affiliate sale (purchaser_type 8). A statistical
// co-occurrence screen, not a hardcoded list.
func AffiliatePairs(cw Crosswalk, sellers, purchasers []Loan, minObs int, minShare float64) map[[2]string]bool {
	s, p := byIndex(sellers), byIndex(purchasers)
	tot := map[[2]string]int{}
	aff := map[[2]string]int{}
	for _, e := range cw {
		ls, okS := s[e.S]
		lp, okP := p[e.P]
		if !okS || !okP {
			continue
		}
		k := [2]string{ls.LEI, lp.LEI}
		tot[k]++
		if ls.PurchaserType == 8 {
			aff[k]++
		}
	}
	out := map[[2]string]bool{}
	for k, n := range tot {
		if n >= minObs && float64(aff[k])/float64(n) >= minShare {
			out[k] = true
		}
	}
	return out
}

// learnRelationships builds the seller-LEI → purchaser-LEI →
// purchaser_type prior from matches to date: a relationship is kept when
// at least 50 matched pairs agree on the purchaser type at least 99% of
// the time.
func (e *Engine) learnRelationships(cw Crosswalk) map[string]map[string]int {
	s := byIndex(e.Sellers)
	p := byIndex(e.Purchasers)

	type key struct {
		leiS, leiP string
		ptype      int
	}
	counts := map[key]int{}
	totals := map[[2]string]int{}
	for _, entry := range cw {
		ls, okS := s[entry.S]
		lp, okP := p[entry.P]
		if !okS || !okP {
			continue
		}
		counts[key{ls.LEI, lp.LEI, ls.PurchaserType}]++
		totals[[2]string{ls.LEI, lp.LEI}]++
	}

	rel := map[string]map[string]int{}
	for k, n := range counts {
		tot := totals[[2]string{k.leiS, k.leiP}]
		if tot < 50 || float64(n)/float64(tot) < 0.99 {
			continue
		}
		if rel[k.leiS] == nil {
			rel[k.leiS] = map[string]int{}
		}
		rel[k.leiS][k.leiP] = k.ptype
	}
	return rel
}
