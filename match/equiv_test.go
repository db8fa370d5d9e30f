package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollapse(t *testing.T) {
	for c := 21; c <= 27; c++ {
		assert.Equal(t, 2, collapseRace(c))
	}
	for c := 41; c <= 44; c++ {
		assert.Equal(t, 4, collapseRace(c))
	}
	assert.Equal(t, 1, collapseRace(1))
	assert.Equal(t, 5, collapseRace(5))

	for c := 11; c <= 14; c++ {
		assert.Equal(t, 1, collapseEth(c))
	}
	assert.Equal(t, 2, collapseEth(2))
}

func TestRaceMatch(t *testing.T) {
	// subcode 22 collapses to 2: accepted
	s := &Loan{Race: [5]int{22}}
	p := &Loan{Race: [5]int{2}}
	assert.True(t, raceMatch(s, p))

	// known differing codes, no slot overlap, no unknowns: rejected
	s = &Loan{Race: [5]int{1}}
	p = &Loan{Race: [5]int{2}}
	assert.False(t, raceMatch(s, p))

	// unknown code on either side accepts
	s = &Loan{Race: [5]int{7}}
	assert.True(t, raceMatch(s, p))
	s = &Loan{Race: [5]int{1}}
	p = &Loan{Race: [5]int{8}}
	assert.True(t, raceMatch(s, p))

	// secondary-slot agreement accepts
	s = &Loan{Race: [5]int{1}}
	p = &Loan{Race: [5]int{2, 1}}
	assert.True(t, raceMatch(s, p))
}

func TestEthMatch(t *testing.T) {
	s := &Loan{Eth: [5]int{11}}
	p := &Loan{Eth: [5]int{1}}
	assert.True(t, ethMatch(s, p))

	s = &Loan{Eth: [5]int{1}}
	p = &Loan{Eth: [5]int{2}}
	assert.False(t, ethMatch(s, p))

	p = &Loan{Eth: [5]int{4}}
	assert.True(t, ethMatch(s, p))
}

func TestSexMatch(t *testing.T) {
	// differing known codes are a hard reject
	assert.False(t, sexMatch(1, 2))
	assert.True(t, sexMatch(1, 1))
	// 4 = not provided escapes
	assert.True(t, sexMatch(4, 2))
	assert.True(t, sexMatch(1, 4))
	// 5 = no co-applicant escapes on the co side only
	assert.True(t, coSexMatch(5, 1))
	assert.False(t, coSexMatch(1, 2))
}

func TestAgeMatch(t *testing.T) {
	assert.True(t, ageMatch(3, 3))
	assert.False(t, ageMatch(3, 4))
	assert.True(t, ageMatch(8888, 4))
	assert.True(t, ageMatch(3, 9999))
}
