package eras

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ExampleTotalUnits() {
	for _, v := range []string{"3", "5-24", "25-49", "50-99", "100-149", ">149"} {
		fmt.Println(TotalUnits.Apply(v))
	}
	// Output:
	// 3
	// 5
	// 6
	// 7
	// 8
	// 9
}

func ExampleTractPre2007() {
	fmt.Println(TractPre2007("6", "037", "1234.56"))
	// Output:
	// 06037123456
}

func TestGeoPadding(t *testing.T) {
	assert.Equal(t, "06", PadState("6"))
	assert.Equal(t, "06037", CountyCode("6", "037"))
	assert.Equal(t, "06037", CountyCode("6", "6037"))
	assert.Equal(t, "", CountyCode("6", "NA"))

	assert.Equal(t, "06037123456", TractPre2007("6", "037", "1234.56"))
	assert.Equal(t, "", TractPre2007("6", "037", "NA"))

	assert.Equal(t, "06037123456", TractPost2018("6037123456"))
	assert.Equal(t, "06037123456", TractPost2018("6037123456.0"))
	assert.Equal(t, "", TractPost2018("NA"))

	assert.Equal(t, "00460", PadMSA("460"))
}

func TestDTIBands(t *testing.T) {
	assert.Equal(t, "10", DTIBands.Apply("<20%"))
	assert.Equal(t, "20", DTIBands.Apply("20%-<30%"))
	assert.Equal(t, "30", DTIBands.Apply("30%-<36%"))
	assert.Equal(t, "50", DTIBands.Apply("50%-60%"))
	assert.Equal(t, "60", DTIBands.Apply(">60%"))
	assert.Equal(t, ExemptSentinel, DTIBands.Apply("Exempt"))
	// in-band ratios arrive numeric and pass through
	assert.Equal(t, "42", DTIBands.Apply("42"))
}

func TestAgeBands(t *testing.T) {
	labels := []string{"<25", "25-34", "35-44", "45-54", "55-64", "65-74", ">74"}
	for i, l := range labels {
		assert.Equal(t, fmt.Sprintf("%d", i+1), AgeBands.Apply(l))
	}
	assert.Equal(t, "8888", AgeBands.Apply("8888"))
}

func TestConformingVariants(t *testing.T) {
	// the two call sites of the source disagree; both variants are kept
	assert.Equal(t, "1111", ConformingSilver.Apply("U"))
	assert.Equal(t, "-1111", ConformingSilver.Apply("NA"))
	assert.Equal(t, ExemptSentinel, ConformingClean.Apply("U"))
	assert.Equal(t, ExemptSentinel, ConformingClean.Apply("NA"))
	assert.Equal(t, "0", ConformingSilver.Apply("NC"))
	assert.Equal(t, "1", ConformingClean.Apply("C"))
}

func TestAge62(t *testing.T) {
	assert.Equal(t, "1", Age62.Apply("Yes"))
	assert.Equal(t, "0", Age62.Apply("no"))
	assert.Equal(t, "", Age62.Apply("NA"))
}

func TestExemptColumns(t *testing.T) {
	assert.Len(t, ExemptColumns, 14)
	assert.True(t, IsExemptColumn("intro_rate_period"))
	assert.False(t, IsExemptColumn("loan_amount"))
}

func TestCasts(t *testing.T) {
	f, ok := ToFloat(" 4.125 ")
	assert.True(t, ok)
	assert.Equal(t, 4.125, f)
	_, ok = ToFloat("Exempt")
	assert.False(t, ok)

	i, ok := ToInt("360.0")
	assert.True(t, ok)
	assert.Equal(t, int64(360), i)
	_, ok = ToInt("360.5")
	assert.False(t, ok)
}

func TestNA(t *testing.T) {
	for _, v := range []string{"", "NA", " na ", "N/A", "."} {
		assert.True(t, IsNA(v), v)
	}
	assert.False(t, IsNA("Exempt"))
	assert.False(t, IsNA("0"))
}
