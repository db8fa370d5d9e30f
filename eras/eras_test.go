package eras

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invertedv/hmda/source"
)

func TestNarrow(t *testing.T) {
	header := []string{"lei", "loan_amount", "mystery_column", "action_taken"}
	s := Post2018.Schema.Narrow(header)
	require.Len(t, s, 4)

	assert.Equal(t, "lei", s[0].Name)
	assert.Equal(t, Str, s[0].Kind)
	assert.Equal(t, Int64, s[1].Kind)
	// unknown columns are carried through as strings, never an error
	assert.Equal(t, "mystery_column", s[2].Name)
	assert.Equal(t, Str, s[2].Kind)
	assert.Equal(t, Int16, s[3].Kind)
}

func TestTier(t *testing.T) {
	assert.Equal(t, Int16, Tier(4, false))
	assert.Equal(t, Int32, Tier(5, false))
	assert.Equal(t, Int32, Tier(9, false))
	assert.Equal(t, Int64, Tier(10, false))
	assert.Equal(t, Float64, Tier(2, true))
}

func TestRename(t *testing.T) {
	assert.Equal(t, "combined_loan_to_value_ratio", Post2018.Rename("loan_to_value_ratio"))
	assert.Equal(t, "activity_year", Period0717.Rename("as_of_year"))
	assert.Equal(t, "loan_amount", Pre2007.Rename("loan_amount_000s"))
	// non-strict: unknown columns pass through
	assert.Equal(t, "whatever", Post2018.Rename("whatever"))
}

func TestForYear(t *testing.T) {
	assert.Same(t, Pre2007, ForYear(2004))
	assert.Same(t, Period0717, ForYear(2007))
	assert.Same(t, Period0717, ForYear(2017))
	assert.Same(t, Post2018, ForYear(2018))
}

func TestForDataset(t *testing.T) {
	assert.Same(t, Post2018, ForDataset(source.Loans, 2019))
	assert.Same(t, Period0717, ForDataset(source.Loans, 2012))
	assert.Same(t, Panel, ForDataset(source.Panel, 2012))
	assert.Same(t, TS, ForDataset(source.TS, 2019))
}

func TestRawTableDef(t *testing.T) {
	td := RawTableDef([]string{"a", "b"}, "a")
	require.NotNil(t, td)
	_, fd, err := td.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", fd.Name)
}

func TestSidecars(t *testing.T) {
	assert.Len(t, Period0717.TractSidecars, 7)
	// post-2018 tract statistics are dropped outright, never split
	assert.Empty(t, Post2018.TractSidecars)
	for _, c := range Period0717.TractSidecars {
		assert.True(t, Period0717.Dropped(c), c)
		_, ok := TractSchema.Find(c)
		assert.True(t, ok, c)
	}
}
