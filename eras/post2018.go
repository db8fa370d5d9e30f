package eras

// Post2018 covers the 2018+ LAR releases. Loan amounts arrive in whole
// dollars, census tracts as 11-digit integer-like strings, and the
// categorical bands (units, ages, DTI) as free-text labels that decode to
// ordinal codes.
var Post2018 = &Rules{
	Name: "post2018",
	Renames: map[string]string{
		"loan_to_value_ratio": "combined_loan_to_value_ratio",
		"derived_msa-md":      "derived_msa_md",
		"uli":                 "universal_loan_identifier",
	},
	Recodes: map[string]Recode{
		"total_units":               TotalUnits,
		"applicant_age":             AgeBands,
		"co_applicant_age":          AgeBands,
		"debt_to_income_ratio":      DTIBands,
		"conforming_loan_limit":     ConformingSilver,
		"applicant_age_above_62":    Age62,
		"co_applicant_age_above_62": Age62,
	},
	DropBronze: []string{
		"derived_loan_product_type",
		"derived_dwelling_category",
		"derived_ethnicity",
		"derived_race",
		"derived_sex",
		"tract_population",
		"tract_minority_population_percent",
		"ffiec_msa_md_median_family_income",
		"tract_to_msa_income_percentage",
		"tract_owner_occupied_units",
		"tract_one_to_four_family_homes",
		"tract_median_age_of_housing_units",
	},
	DerivedPrefer: map[string]string{
		"applicant_race_1":      "derived_race",
		"applicant_ethnicity_1": "derived_ethnicity",
		"applicant_sex":         "derived_sex",
	},
	Schema: Schema{
		{"activity_year", Int16, "reporting year"},
		{"lei", Str, "legal entity identifier of the reporter"},
		{"universal_loan_identifier", Str, "ULI with check digit"},
		{"derived_msa_md", Str, "MSA/MD, 5 digits"},
		{"state_code", Str, "state FIPS, 2 digits"},
		{"county_code", Str, "county FIPS, 5 digits"},
		{"census_tract", Str, "census tract, 11 digits"},
		{"conforming_loan_limit", Int16, "NC/C/U/NA decoded"},
		{"action_taken", Int16, "1=originated ... 6=purchased"},
		{"purchaser_type", Int16, "type of purchasing institution"},
		{"preapproval", Int16, ""},
		{"loan_type", Int16, ""},
		{"loan_purpose", Int16, "1=purchase, 31/32=refinance"},
		{"lien_status", Int16, ""},
		{"reverse_mortgage", Int16, ""},
		{"open_end_line_of_credit", Int16, ""},
		{"business_or_commercial_purpose", Int16, ""},
		{"loan_amount", Int64, "whole dollars"},
		{"combined_loan_to_value_ratio", Float64, ""},
		{"interest_rate", Float64, ""},
		{"rate_spread", Float64, "spread over APOR"},
		{"hoepa_status", Int16, ""},
		{"total_loan_costs", Float64, ""},
		{"total_points_and_fees", Float64, ""},
		{"origination_charges", Float64, ""},
		{"discount_points", Float64, ""},
		{"lender_credits", Float64, ""},
		{"loan_term", Float64, "months"},
		{"prepayment_penalty_term", Float64, ""},
		{"intro_rate_period", Float64, ""},
		{"negative_amortization", Int16, ""},
		{"interest_only_payment", Int16, ""},
		{"balloon_payment", Int16, ""},
		{"other_nonamortizing_features", Int16, ""},
		{"property_value", Float64, ""},
		{"construction_method", Int16, ""},
		{"occupancy_type", Int16, ""},
		{"manufactured_home_secured_property_type", Int16, ""},
		{"manufactured_home_land_property_interest", Int16, ""},
		{"total_units", Int16, "banded above 4"},
		{"multifamily_affordable_units", Float64, ""},
		{"income", Float64, "thousands"},
		{"debt_to_income_ratio", Int32, "banded outside 36-49"},
		{"applicant_credit_score_type", Int16, ""},
		{"co_applicant_credit_score_type", Int16, ""},
		{"applicant_ethnicity_1", Int16, ""},
		{"applicant_ethnicity_2", Int16, ""},
		{"applicant_ethnicity_3", Int16, ""},
		{"applicant_ethnicity_4", Int16, ""},
		{"applicant_ethnicity_5", Int16, ""},
		{"co_applicant_ethnicity_1", Int16, ""},
		{"co_applicant_ethnicity_2", Int16, ""},
		{"co_applicant_ethnicity_3", Int16, ""},
		{"co_applicant_ethnicity_4", Int16, ""},
		{"co_applicant_ethnicity_5", Int16, ""},
		{"applicant_ethnicity_observed", Int16, ""},
		{"co_applicant_ethnicity_observed", Int16, ""},
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
		{"applicant_race_observed", Int16, ""},
		{"co_applicant_race_observed", Int16, ""},
		{"applicant_sex", Int16, "4=not provided"},
		{"co_applicant_sex", Int16, "5=no co-applicant"},
		{"applicant_sex_observed", Int16, ""},
		{"co_applicant_sex_observed", Int16, ""},
		{"applicant_age", Int16, "banded"},
		{"co_applicant_age", Int16, "banded, 9999=no co-applicant"},
		{"applicant_age_above_62", Int16, "yes/no/na decoded"},
		{"co_applicant_age_above_62", Int16, ""},
		{"submission_of_application", Int16, ""},
		{"initially_payable_to_institution", Int16, ""},
		{"aus_1", Int16, ""},
		{"aus_2", Int16, ""},
		{"aus_3", Int16, ""},
		{"aus_4", Int16, ""},
		{"aus_5", Int16, ""},
		{"denial_reason_1", Int16, ""},
		{"denial_reason_2", Int16, ""},
		{"denial_reason_3", Int16, ""},
		{"denial_reason_4", Int16, ""},
	},
}

// PanelRenames fixes the panel file headers at extraction time.
var PanelRenames = map[string]string{
	"topholder_rssd": "top_holder_rssd",
	"topholder_name": "top_holder_name",
	"upper":          "lei",
}

// Panel is the lender panel schema (post-2018 column names; the pre-2018
// panel narrows to the subset present).
var Panel = &Rules{
	Name:    "panel",
	Renames: PanelRenames,
	Schema: Schema{
		{"activity_year", Int16, ""},
		{"lei", Str, ""},
		{"respondent_id", Str, ""},
		{"agency_code", Int16, ""},
		{"arid_2017", Str, "2017 agency+respondent id"},
		{"tax_id", Str, ""},
		{"top_holder_rssd", Int64, ""},
		{"top_holder_name", Str, ""},
		{"respondent_name", Str, ""},
		{"respondent_state", Str, ""},
		{"respondent_city", Str, ""},
		{"assets", Int64, "thousands"},
		{"other_lender_code", Int16, ""},
		{"parent_rssd", Int64, ""},
		{"parent_name", Str, ""},
		{"lar_count", Int32, ""},
	},
}

// TS is the transmittal series schema.
var TS = &Rules{
	Name:    "ts",
	Renames: map[string]string{"calendar_year": "activity_year"},
	Schema: Schema{
		{"activity_year", Int16, ""},
		{"lei", Str, ""},
		{"respondent_id", Str, ""},
		{"agency_code", Int16, ""},
		{"institution_name", Str, ""},
		{"city", Str, ""},
		{"state", Str, ""},
		{"zip_code", Str, ""},
		{"tax_id", Str, ""},
		{"lar_count", Int32, ""},
		{"contact_name", Str, ""},
		{"contact_tel", Str, ""},
		{"contact_email", Str, ""},
	},
}
