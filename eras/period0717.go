package eras

// Period0717 covers the 2007-2017 LAR releases. Amounts arrive in
// thousands of dollars (rescaled ×1000 at silver), census tracts as
// decimal strings needing the ×100 reconstruction, and the seven tract
// summary statistics are reported redundantly on every loan row so they
// split into the sidecar table.
var Period0717 = &Rules{
	Name: "period_2007_2017",
	Renames: map[string]string{
		"as_of_year":             "activity_year",
		"owner_occupancy":        "occupancy_type",
		"occupancy":              "occupancy_type",
		"loan_amount_000s":       "loan_amount",
		"applicant_income_000s":  "income",
		"census_tract_number":    "census_tract",
		"msamd":                  "derived_msa_md",
		"applicant_ethnicity":    "applicant_ethnicity_1",
		"co_applicant_ethnicity": "co_applicant_ethnicity_1",
	},
	Recodes: map[string]Recode{},
	Rescale: map[string]int{
		"loan_amount": 1000,
		"income":      1000,
	},
	TractSidecars: []string{
		"population",
		"minority_population",
		"hud_median_family_income",
		"tract_to_msa_family_income",
		"number_of_owner_occupied_units",
		"number_of_1_to_4_family_units",
		"ffiec_median_family_income",
	},
	DropBronze: []string{
		"population",
		"minority_population",
		"hud_median_family_income",
		"tract_to_msa_family_income",
		"number_of_owner_occupied_units",
		"number_of_1_to_4_family_units",
		"ffiec_median_family_income",
	},
	Schema: Schema{
		{"activity_year", Int16, "reporting year"},
		{"respondent_id", Str, "pre-2018 reporter id"},
		{"agency_code", Int16, ""},
		{"sequence_number", Str, "per-reporter row sequence"},
		{"loan_type", Int16, ""},
		{"property_type", Int16, ""},
		{"loan_purpose", Int16, ""},
		{"occupancy_type", Int16, ""},
		{"loan_amount", Int64, "rescaled to whole dollars"},
		{"preapproval", Int16, ""},
		{"action_taken", Int16, ""},
		{"derived_msa_md", Str, "MSA/MD, 5 digits"},
		{"state_code", Str, "state FIPS, 2 digits"},
		{"county_code", Str, "county FIPS, 5 digits"},
		{"census_tract", Str, "census tract, 11 digits"},
		{"applicant_ethnicity_1", Int16, ""},
		{"co_applicant_ethnicity_1", Int16, ""},
		{"applicant_race_1", Int16, ""},
		{"applicant_race_2", Int16, ""},
		{"applicant_race_3", Int16, ""},
		{"applicant_race_4", Int16, ""},
		{"applicant_race_5", Int16, ""},
		{"co_applicant_race_1", Int16, ""},
		{"co_applicant_race_2", Int16, ""},
		{"co_applicant_race_3", Int16, ""},
		{"co_applicant_race_4", Int16, ""},
		{"co_applicant_race_5", Int16, ""},
		{"applicant_sex", Int16, ""},
		{"co_applicant_sex", Int16, ""},
		{"income", Float64, "rescaled to whole dollars"},
		{"purchaser_type", Int16, ""},
		{"denial_reason_1", Int16, ""},
		{"denial_reason_2", Int16, ""},
		{"denial_reason_3", Int16, ""},
		{"rate_spread", Float64, ""},
		{"hoepa_status", Int16, ""},
		{"lien_status", Int16, ""},
		{"edit_status", Int16, ""},
		{"application_date_indicator", Int16, ""},
	},
}

// TractSchema types the sidecar statistics split out of the 2007-2017
// loan rows, keyed by (activity_year, census_tract).
var TractSchema = Schema{
	{"activity_year", Int16, "reporting year"},
	{"census_tract", Str, "census tract, 11 digits"},
	{"population", Int32, "tract population"},
	{"minority_population", Float64, "minority population percent"},
	{"hud_median_family_income", Int32, ""},
	{"tract_to_msa_family_income", Float64, "tract/MSA income percent"},
	{"number_of_owner_occupied_units", Int32, ""},
	{"number_of_1_to_4_family_units", Int32, ""},
	{"ffiec_median_family_income", Int32, ""},
}
