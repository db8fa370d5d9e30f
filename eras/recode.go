package eras

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExemptSentinel replaces the literal "Exempt" in fee/rate/term columns
// before the numeric cast. It is a value, not a null: exemption is
// reported, not missing.
const ExemptSentinel = "-99999"

// ExemptColumns are the fourteen columns where "Exempt" is a legal report.
var ExemptColumns = []string{
	"combined_loan_to_value_ratio",
	"interest_rate",
	"rate_spread",
	"total_loan_costs",
	"total_points_and_fees",
	"origination_charges",
	"discount_points",
	"lender_credits",
	"loan_term",
	"prepayment_penalty_term",
	"intro_rate_period",
	"income",
	"property_value",
	"multifamily_affordable_units",
}

// NATokens become null in every column during cleaning.
var NATokens = []string{"", "NA", "N/A", "na", "None", "."}

// Recode is an ordered label-to-code replacement list applied to the raw
// string before the numeric cast. Values not in the list pass through.
type Recode []struct{ Label, Code string }

// Apply replaces v when it matches a label exactly.
func (r Recode) Apply(v string) string {
	for _, e := range r {
		if v == e.Label {
			return e.Code
		}
	}
	return v
}

// TotalUnits decodes the post-2018 dwelling-unit bands. Counts 1-4 arrive
// numeric and pass through.
var TotalUnits = Recode{
	{"5-24", "5"},
	{"25-49", "6"},
	{"50-99", "7"},
	{"100-149", "8"},
	{">149", "9"},
}

// AgeBands decodes applicant_age/co_applicant_age. 8888/9999 pass through.
var AgeBands = Recode{
	{"<25", "1"},
	{"25-34", "2"},
	{"35-44", "3"},
	{"45-54", "4"},
	{"55-64", "5"},
	{"65-74", "6"},
	{">74", "7"},
}

// DTIBands decodes debt_to_income_ratio. Ratios 36-49 arrive numeric.
var DTIBands = Recode{
	{"<20%", "10"},
	{"20%-<30%", "20"},
	{"30%-<36%", "30"},
	{"50%-60%", "50"},
	{">60%", "60"},
	{"Exempt", ExemptSentinel},
}

// ConformingSilver and ConformingClean are the two observed recodings of
// conforming_loan_limit. The source disagrees between its call sites, so
// both are kept: the silver build uses the first, the cleaning pipeline
// the second.
var (
	ConformingSilver = Recode{
		{"NC", "0"},
		{"C", "1"},
		{"U", "1111"},
		{"NA", "-1111"},
	}
	ConformingClean = Recode{
		{"NC", "0"},
		{"C", "1"},
		{"U", ExemptSentinel},
		{"NA", ExemptSentinel},
	}
)

// Age62 decodes the age-above-62 dummies; na maps to null (empty).
var Age62 = Recode{
	{"yes", "1"}, {"Yes", "1"}, {"YES", "1"},
	{"no", "0"}, {"No", "0"}, {"NO", "0"},
	{"na", ""}, {"Na", ""}, {"NA", ""},
}

// IsExemptColumn reports whether name takes the Exempt sentinel.
func IsExemptColumn(name string) bool {
	for _, c := range ExemptColumns {
		if c == name {
			return true
		}
	}
	return false
}

// IsNA reports whether the raw value is one of the NA tokens.
func IsNA(v string) bool {
	v = strings.TrimSpace(v)
	for _, t := range NATokens {
		if v == t {
			return true
		}
	}
	return false
}

// ToFloat is the non-strict float cast: malformed values report !ok
// (null downstream), never an error.
func ToFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToInt is the non-strict integer cast. Values recorded with a decimal
// point but integral (a common source quirk) still parse.
func ToInt(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// zfill left-pads s with zeros to width.
func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// PadState standardizes a state FIPS code to 2 digits, "" when
// unparseable.
func PadState(state string) string {
	i, ok := ToInt(state)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%02d", i)
}

// CountyCode builds the 5-digit county FIPS as 1000*state + county.
func CountyCode(state, county string) string {
	s, ok := ToInt(state)
	if !ok {
		return ""
	}
	c, ok := ToInt(county)
	if !ok {
		return ""
	}
	// a county already carrying its state prefix is used as-is
	if c >= 1000 {
		return fmt.Sprintf("%05d", c)
	}
	return fmt.Sprintf("%05d", 1000*s+c)
}

// TractPre2007 reconstructs the 11-digit census tract from the legacy
// decimal encoding: state(2) + county last 3 + round(tract*100) padded
// to 6. Returns "" when any component fails to parse.
func TractPre2007(state, county, tract string) string {
	st := PadState(state)
	cnty := CountyCode(state, county)
	if st == "" || cnty == "" {
		return ""
	}
	f, ok := ToFloat(tract)
	if !ok {
		return ""
	}
	t := strconv.FormatInt(int64(math.Round(f*100)), 10)
	return st + cnty[2:] + zfill(t, 6)
}

// TractPost2018 standardizes the modern tract encoding: the source already
// carries full precision, so the value casts float→int→string and pads to
// 11. Returns "" when unparseable.
func TractPost2018(tract string) string {
	f, ok := ToFloat(tract)
	if !ok {
		return ""
	}
	return zfill(strconv.FormatInt(int64(f), 10), 11)
}

// PadMSA standardizes an MSA/MD code to 5 digits.
func PadMSA(msa string) string {
	i, ok := ToInt(msa)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%05d", i)
}
