package match

import (
	"fmt"
	"math"
)

// numeric tolerances, shared across rounds
const (
	incomeTol  = 1.0
	rateTol    = 0.0625
	weakTol    = 0.01
	termTol    = 12.0
	propValTol = 20000.0
	amountFuzz = 10000.0
)

type pair struct {
	s, p *Loan
}

// tolMatch accepts when either side is missing or the values agree within
// tol. Missing is never evidence against a pair.
func tolMatch(a, b, tol float64) bool {
	if na(a) || na(b) {
		return true
	}
	return math.Abs(a-b) <= tol
}

// matchable gates every keyed round: a record missing its loan amount or
// census tract has no usable hard key, so it stays in the residual pool
// rather than pairing with another record missing the same fields.
func matchable(l *Loan) bool {
	return !na(l.LoanAmount) && l.CensusTract != "" && l.CensusTract != "NA"
}

// join builds candidate pairs on an exact hard key.
func join(sellers, purchasers []Loan, key func(*Loan) string) []pair {
	idx := make(map[string][]*Loan, len(purchasers))
	for i := range purchasers {
		if !matchable(&purchasers[i]) {
			continue
		}
		k := key(&purchasers[i])
		idx[k] = append(idx[k], &purchasers[i])
	}
	var out []pair
	for i := range sellers {
		if !matchable(&sellers[i]) {
			continue
		}
		for _, p := range idx[key(&sellers[i])] {
			out = append(out, pair{&sellers[i], p})
		}
	}
	return out
}

func filter(pairs []pair, keep func(pair) bool) []pair {
	out := pairs[:0]
	for _, pr := range pairs {
		if keep(pr) {
			out = append(out, pr)
		}
	}
	return out
}

// feeCounts returns the number of exactly-agreeing fee fields and the
// per-side counts of reported fees.
func feeCounts(s, p *Loan) (matches, nS, nP int) {
	fs, fp := s.fees(), p.fees()
	for i := 0; i < 5; i++ {
		if !na(fs[i]) {
			nS++
		}
		if !na(fp[i]) {
			nP++
		}
		if !na(fs[i]) && !na(fp[i]) && fs[i] == fp[i] {
			matches++
		}
	}
	return matches, nS, nP
}

// feeAgree requires at least one fee field to match exactly unless one
// side reports no fees at all.
func feeAgree(s, p *Loan) bool {
	m, nS, nP := feeCounts(s, p)
	return m >= 1 || nS == 0 || nP == 0
}

// generousFeeAgree accepts any equality across the 5x5 fee cross: late
// rounds tolerate fees landing in a different fee bucket on each side.
func generousFeeAgree(s, p *Loan) bool {
	_, nS, nP := feeCounts(s, p)
	if nS == 0 || nP == 0 {
		return true
	}
	fs, fp := s.fees(), p.fees()
	for i := 0; i < 5; i++ {
		if na(fs[i]) {
			continue
		}
		for j := 0; j < 5; j++ {
			if !na(fp[j]) && fs[i] == fp[j] {
				return true
			}
		}
	}
	return false
}

// weakVeto drops candidates whose diff exceeds tol while a competitor for
// the same record gets within tol: a weak match only stands when nothing
// better exists for either side.
func weakVeto(pairs []pair, diff func(pair) float64, tol float64) []pair {
	minS := map[string]float64{}
	minP := map[string]float64{}
	ds := make([]float64, len(pairs))
	for i, pr := range pairs {
		d := diff(pr)
		ds[i] = d
		if na(d) {
			continue
		}
		if m, ok := minS[pr.s.Index]; !ok || d < m {
			minS[pr.s.Index] = d
		}
		if m, ok := minP[pr.p.Index]; !ok || d < m {
			minP[pr.p.Index] = d
		}
	}
	out := pairs[:0]
	for i, pr := range pairs {
		d := ds[i]
		if na(d) || d <= tol {
			out = append(out, pr)
			continue
		}
		if m, ok := minS[pr.s.Index]; ok && m <= tol {
			continue
		}
		if m, ok := minP[pr.p.Index]; ok && m <= tol {
			continue
		}
		out = append(out, pr)
	}
	return out
}

// keepUniques enforces uniqueness-based acceptance. With oneToOne, a pair
// survives only when both indexes appear exactly once in the candidate
// set. Otherwise a seller may map to two purchaser records when one of
// them is independently known to be a secondary sale
// (purchaser_type_p > 4); the purchaser side must always be unique.
// Ambiguous groups are excluded entirely, never guessed at.
func keepUniques(pairs []pair, oneToOne bool) []Entry {
	cntS := map[string]int{}
	cntP := map[string]int{}
	for _, pr := range pairs {
		cntS[pr.s.Index]++
		cntP[pr.p.Index]++
	}

	var out []Entry
	if oneToOne {
		for _, pr := range pairs {
			if cntS[pr.s.Index] == 1 && cntP[pr.p.Index] == 1 {
				out = append(out, Entry{S: pr.s.Index, P: pr.p.Index})
			}
		}
		return out
	}

	bySeller := map[string][]pair{}
	for _, pr := range pairs {
		bySeller[pr.s.Index] = append(bySeller[pr.s.Index], pr)
	}
	for _, grp := range bySeller {
		unique := true
		for _, pr := range grp {
			if cntP[pr.p.Index] != 1 {
				unique = false
				break
			}
		}
		if !unique {
			continue
		}
		switch len(grp) {
		case 1:
			out = append(out, Entry{S: grp[0].s.Index, P: grp[0].p.Index})
		case 2:
			secondary := grp[0].p.PurchaserType > 4 || grp[1].p.PurchaserType > 4
			if !secondary {
				continue
			}
			for _, pr := range grp {
				out = append(out, Entry{
					S: pr.s.Index, P: pr.p.Index,
					Secondary: pr.p.PurchaserType > 4,
				})
			}
		}
	}
	return out
}

// screen is the shared candidate filter: income and rate tolerances, the
// weak-match vetoes, fee agreement, categorical compatibility and the
// tighter term/value pass.
func screen(pairs []pair, generousFees bool) []pair {
	pairs = filter(pairs, func(pr pair) bool {
		return tolMatch(pr.s.Income, pr.p.Income, incomeTol) &&
			tolMatch(pr.s.InterestRate, pr.p.InterestRate, rateTol)
	})
	pairs = weakVeto(pairs, func(pr pair) float64 {
		return math.Abs(pr.s.Income - pr.p.Income)
	}, weakTol)
	pairs = weakVeto(pairs, func(pr pair) float64 {
		return math.Abs(pr.s.InterestRate - pr.p.InterestRate)
	}, weakTol)

	fees := feeAgree
	if generousFees {
		fees = generousFeeAgree
	}
	pairs = filter(pairs, func(pr pair) bool { return fees(pr.s, pr.p) })
	pairs = filter(pairs, func(pr pair) bool { return demographicsMatch(pr.s, pr.p) })

	return filter(pairs, func(pr pair) bool {
		return tolMatch(pr.s.LoanTerm, pr.p.LoanTerm, termTol) &&
			tolMatch(pr.s.PropertyValue, pr.p.PropertyValue, propValTol) &&
			tolMatch(pr.s.IntroRatePeriod, pr.p.IntroRatePeriod, 0) &&
			tolMatch(pr.s.PrepaymentPenaltyTerm, pr.p.PrepaymentPenaltyTerm, 0) &&
			catMatch(pr.s.LienStatus, pr.p.LienStatus) &&
			catMatch(pr.s.TotalUnits, pr.p.TotalUnits) &&
			catMatch(pr.s.ConstructionMethod, pr.p.ConstructionMethod) &&
			catMatch(pr.s.OpenEndLOC, pr.p.OpenEndLOC) &&
			catMatch(pr.s.ConformingLimit, pr.p.ConformingLimit)
	})
}

// catMatch requires exact agreement on a categorical code; missing (0 or
// an exempt sentinel) never counts against a pair.
func catMatch(a, b int) bool {
	if catNA(a) || catNA(b) {
		return true
	}
	return a == b
}

func catNA(v int) bool { return v <= 0 || v == 1111 }

// crossYear allows cross-year sales: the sale year never follows the
// purchase year.
func crossYear(pr pair) bool { return pr.s.Year <= pr.p.Year }

// hard keys

func keyFull(l *Loan) string {
	return fmt.Sprintf("%d|%.0f|%s|%d|%d", l.LoanType, l.LoanAmount, l.CensusTract,
		l.OccupancyType, l.LoanPurpose)
}

func keyFullYear(l *Loan) string {
	return fmt.Sprintf("%d|%s", l.Year, keyFull(l))
}

// keyLoose drops the amount and tract: round 3 leans on categorical and
// fee agreement instead.
func keyLoose(l *Loan) string {
	return fmt.Sprintf("%d|%d|%d|%s", l.LoanType, l.OccupancyType, l.LoanPurpose, l.County)
}

// keyNoPurpose keeps amount and tract but frees the purpose code for the
// refinance-subtype compatibility check.
func keyNoPurpose(l *Loan) string {
	return fmt.Sprintf("%d|%.0f|%s|%d", l.LoanType, l.LoanAmount, l.CensusTract, l.OccupancyType)
}

// keyNoAmount frees the amount for the round-5 fuzzy join.
func keyNoAmount(l *Loan) string {
	return fmt.Sprintf("%d|%s|%d|%d", l.LoanType, l.CensusTract, l.OccupancyType, l.LoanPurpose)
}

// purposeCompat treats the two "other refinance" buckets (31/32) as
// mutually compatible.
func purposeCompat(a, b int) bool {
	if a == b {
		return true
	}
	return (a == 31 || a == 32) && (b == 31 || b == 32)
}

// round1: same-year exact hard keys, one-to-one only.
func (e *Engine) round1(sellers, purchasers []Loan) []Entry {
	pairs := screen(join(sellers, purchasers, keyFullYear), false)
	return keepUniques(pairs, true)
}

// round2: round 1 relaxed to cross-year sales.
func (e *Engine) round2(sellers, purchasers []Loan) []Entry {
	pairs := join(sellers, purchasers, keyFull)
	pairs = filter(pairs, crossYear)
	return keepUniques(screen(pairs, false), true)
}

// round3: drops amount and tract from the hard key, allows the
// secondary-sale one-to-two exception.
func (e *Engine) round3(sellers, purchasers []Loan) []Entry {
	pairs := join(sellers, purchasers, keyLoose)
	pairs = filter(pairs, crossYear)
	pairs = filter(pairs, func(pr pair) bool {
		return tolMatch(pr.s.LoanAmount, pr.p.LoanAmount, 0)
	})
	return keepUniques(screen(pairs, true), false)
}

// round4: frees the purpose code, requiring only refinance-subtype
// compatibility.
func (e *Engine) round4(sellers, purchasers []Loan) []Entry {
	pairs := join(sellers, purchasers, keyNoPurpose)
	pairs = filter(pairs, crossYear)
	pairs = filter(pairs, func(pr pair) bool {
		return purposeCompat(pr.s.LoanPurpose, pr.p.LoanPurpose)
	})
	return keepUniques(screen(pairs, false), false)
}

// round5: controlled fuzzy join on the amount. Each sold loan probes the
// purchaser pool at amount, amount-10000 and amount+10000; the matched
// difference must be non-negative (purchaser amount never exceeds the
// seller's) and known secondary-sale purchasers are excluded.
func (e *Engine) round5(sellers, purchasers []Loan) []Entry {
	idx := map[string][]*Loan{}
	for i := range purchasers {
		if purchasers[i].PurchaserType > 4 || !matchable(&purchasers[i]) {
			continue
		}
		k := fmt.Sprintf("%s|%.0f", keyNoAmount(&purchasers[i]), purchasers[i].LoanAmount)
		idx[k] = append(idx[k], &purchasers[i])
	}
	var pairs []pair
	for i := range sellers {
		s := &sellers[i]
		if !matchable(s) {
			continue
		}
		for _, da := range []float64{0, -amountFuzz, amountFuzz} {
			k := fmt.Sprintf("%s|%.0f", keyNoAmount(s), s.LoanAmount+da)
			for _, p := range idx[k] {
				if s.LoanAmount-p.LoanAmount >= 0 {
					pairs = append(pairs, pair{s, p})
				}
			}
		}
	}
	pairs = filter(pairs, crossYear)
	return keepUniques(screen(pairs, false), true)
}

// round6: inter-affiliate sales only, restricted to LEI pairs the
// affiliate co-occurrence pass established.
func (e *Engine) round6(sellers, purchasers []Loan) []Entry {
	var sub []Loan
	for _, s := range sellers {
		if s.PurchaserType == 8 {
			sub = append(sub, s)
		}
	}
	pairs := join(sub, purchasers, keyFull)
	pairs = filter(pairs, crossYear)
	pairs = filter(pairs, func(pr pair) bool {
		return e.Affiliates[[2]string{pr.s.LEI, pr.p.LEI}]
	})
	return keepUniques(screen(pairs, true), false)
}

// relationshipOK accepts a pair matching the learned seller/purchaser
// purchaser-type relationship, or one whose seller reported no purchaser
// type at all.
func (e *Engine) relationshipOK(pr pair) bool {
	if pr.s.PurchaserType == 0 {
		return true
	}
	if m, ok := e.Relationships[pr.s.LEI]; ok {
		if pt, ok := m[pr.p.LEI]; ok {
			return pt == pr.s.PurchaserType
		}
	}
	return false
}

// round7: the relationship prior learned from round 5 output as a
// positive constraint, with the unreported-purchaser-type escape.
func (e *Engine) round7(sellers, purchasers []Loan) []Entry {
	pairs := join(sellers, purchasers, keyFull)
	pairs = filter(pairs, crossYear)
	pairs = filter(pairs, e.relationshipOK)
	return keepUniques(screen(pairs, true), false)
}

// round8: like round 7 but originations that never reported a purchaser
// type are excluded outright.
func (e *Engine) round8(sellers, purchasers []Loan) []Entry {
	var sub []Loan
	for _, s := range sellers {
		if s.PurchaserType != 0 {
			sub = append(sub, s)
		}
	}
	pairs := join(sub, purchasers, keyFull)
	pairs = filter(pairs, crossYear)
	pairs = filter(pairs, func(pr pair) bool {
		if e.Affiliates[[2]string{pr.s.LEI, pr.p.LEI}] {
			return true
		}
		if m, ok := e.Relationships[pr.s.LEI]; ok {
			if pt, ok := m[pr.p.LEI]; ok {
				return pt == pr.s.PurchaserType
			}
		}
		return false
	})
	return keepUniques(screen(pairs, true), true)
}
