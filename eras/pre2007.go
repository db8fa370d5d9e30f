package eras

// Pre2007 covers the 1990-2006 national archive releases. Single-slot
// race fields, amounts in thousands, decimal-encoded census tracts.
var Pre2007 = &Rules{
	Name: "pre2007",
	Renames: map[string]string{
		"as_of_year":            "activity_year",
		"occupancy":             "occupancy_type",
		"loan_amount_000s":      "loan_amount",
		"applicant_income_000s": "income",
		"census_tract_number":   "census_tract",
		"msa_of_property":       "derived_msa_md",
		"msamd":                 "derived_msa_md",
		"applicant_race":        "applicant_race_1",
		"co_applicant_race":     "co_applicant_race_1",
	},
	Recodes: map[string]Recode{},
	Rescale: map[string]int{
		"loan_amount": 1000,
		"income":      1000,
	},
	Schema: Schema{
		{"activity_year", Int16, "reporting year"},
		{"respondent_id", Str, ""},
		{"agency_code", Int16, ""},
		{"sequence_number", Str, ""},
		{"loan_type", Int16, ""},
		{"loan_purpose", Int16, ""},
		{"occupancy_type", Int16, ""},
		{"loan_amount", Int64, "rescaled to whole dollars"},
		{"action_taken", Int16, ""},
		{"derived_msa_md", Str, "MSA, 5 digits"},
		{"state_code", Str, "state FIPS, 2 digits"},
		{"county_code", Str, "county FIPS, 5 digits"},
		{"census_tract", Str, "reconstructed 11-digit tract"},
		{"applicant_race_1", Int16, "single-slot era race code"},
		{"co_applicant_race_1", Int16, ""},
		{"applicant_sex", Int16, ""},
		{"co_applicant_sex", Int16, ""},
		{"income", Float64, "rescaled to whole dollars"},
		{"purchaser_type", Int16, ""},
		{"denial_reason_1", Int16, ""},
		{"denial_reason_2", Int16, ""},
		{"denial_reason_3", Int16, ""},
		{"edit_status", Int16, ""},
	},
}
