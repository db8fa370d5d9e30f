package match

// Categorical equivalence rules shared by every round. The collapse maps
// and unknown-code escapes reproduce the public-file code book: race
// subcodes 21-27 are flavors of 2 (Asian) and 41-44 of 4 (Pacific
// Islander); ethnicity subcodes 11-14 are flavors of 1 (Hispanic).

// race codes meaning not available / not applicable
func raceUnknown(c int) bool { return c == 7 || c == 8 }

// ethnicity codes meaning not provided / not applicable
func ethUnknown(c int) bool { return c == 4 || c == 5 }

// collapseRace folds subcodes into their supercategory.
func collapseRace(c int) int {
	switch {
	case c >= 21 && c <= 27:
		return 2
	case c >= 41 && c <= 44:
		return 4
	}
	return c
}

// collapseEth folds ethnicity subcodes into Hispanic.
func collapseEth(c int) int {
	if c >= 11 && c <= 14 {
		return 1
	}
	return c
}

// slotMatch accepts when a's primary code appears anywhere in b's slots or
// vice versa, after collapsing. Zero slots are empty.
func slotMatch(a, b [5]int, collapse func(int) int) bool {
	pa, pb := collapse(a[0]), collapse(b[0])
	if pa == 0 || pb == 0 {
		return true
	}
	for _, c := range b {
		if c != 0 && collapse(c) == pa {
			return true
		}
	}
	for _, c := range a {
		if c != 0 && collapse(c) == pb {
			return true
		}
	}
	return false
}

// raceMatch accepts when either side reports an unknown code or any slot
// agrees after collapsing.
func raceMatch(s, p *Loan) bool {
	if raceUnknown(s.Race[0]) || raceUnknown(p.Race[0]) {
		return true
	}
	return slotMatch(s.Race, p.Race, collapseRace)
}

func coRaceMatch(s, p *Loan) bool {
	if raceUnknown(s.CoRace[0]) || raceUnknown(p.CoRace[0]) {
		return true
	}
	return slotMatch(s.CoRace, p.CoRace, collapseRace)
}

func ethMatch(s, p *Loan) bool {
	if ethUnknown(s.Eth[0]) || ethUnknown(p.Eth[0]) {
		return true
	}
	return slotMatch(s.Eth, p.Eth, collapseEth)
}

func coEthMatch(s, p *Loan) bool {
	if ethUnknown(s.CoEth[0]) || ethUnknown(p.CoEth[0]) {
		return true
	}
	return slotMatch(s.CoEth, p.CoEth, collapseEth)
}

// sexMatch is a hard reject on differing known codes; only code 4
// ("not provided") escapes. Code 0 means the column was missing.
func sexMatch(a, b int) bool {
	if a == 0 || b == 0 || a == 4 || b == 4 {
		return true
	}
	return a == b
}

// coSexMatch additionally escapes code 5 (no co-applicant).
func coSexMatch(a, b int) bool {
	if a == 5 || b == 5 {
		return true
	}
	return sexMatch(a, b)
}

// ageMatch accepts exact agreement or the 8888/9999 wildcards.
func ageMatch(a, b int) bool {
	if a == 0 || b == 0 || a == 8888 || b == 8888 || a == 9999 || b == 9999 {
		return true
	}
	return a == b
}

// demographicsMatch is the full categorical screen applied to a candidate
// pair: applicant and co-applicant race, ethnicity, sex and age.
func demographicsMatch(s, p *Loan) bool {
	return raceMatch(s, p) && coRaceMatch(s, p) &&
		ethMatch(s, p) && coEthMatch(s, p) &&
		sexMatch(s.Sex, p.Sex) && coSexMatch(s.CoSex, p.CoSex) &&
		ageMatch(s.Age, p.Age) && ageMatch(s.CoAge, p.CoAge)
}
