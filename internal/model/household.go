package model

import "strconv"

// Sex labels as produced by the population synthesis.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// SizeBucket is the household size modality used by the income tables.
type SizeBucket string

const (
	Size1     SizeBucket = "1_pers"
	Size2     SizeBucket = "2_pers"
	Size3     SizeBucket = "3_pers"
	Size4     SizeBucket = "4_pers"
	Size5Plus SizeBucket = "5_pers_or_more"
)

// SizeBuckets lists every size bucket in table order.
var SizeBuckets = []SizeBucket{Size1, Size2, Size3, Size4, Size5Plus}

// SizeBucketFor maps a person count to its size bucket. Counts of five and
// above collapse into Size5Plus.
func SizeBucketFor(n int) SizeBucket {
	if n >= 5 {
		return Size5Plus
	}
	return SizeBucket(strconv.Itoa(n) + "_pers")
}

// HouseholdType is the household typology used by the income tables.
type HouseholdType string

const (
	SingleMan          HouseholdType = "Single_man"
	SingleWoman        HouseholdType = "Single_woman"
	CoupleWithoutChild HouseholdType = "Couple_without_child"
	CoupleWithChild    HouseholdType = "Couple_with_child"
	SingleParent       HouseholdType = "Single_parent"
	ComplexHousehold   HouseholdType = "complex_hh"
)

// HouseholdTypes lists every household type in table order.
var HouseholdTypes = []HouseholdType{
	SingleMan, SingleWoman, CoupleWithoutChild, CoupleWithChild, SingleParent, ComplexHousehold,
}

// PersonRecord is one synthetic person. HouseholdSize is the size declared by
// the upstream synthesis; ConsumptionUnits is the household weight repeated on
// every member.
type PersonRecord struct {
	PersonID         int64   `json:"person_id"`
	HouseholdID      int64   `json:"household_id"`
	Sex              Sex     `json:"sex"`
	Age              int     `json:"age"`
	Couple           bool    `json:"couple"`
	HouseholdSize    int     `json:"household_size"`
	ConsumptionUnits float64 `json:"consumption_units"`
}

// HomeRecord assigns a household to its home municipality.
type HomeRecord struct {
	HouseholdID int64  `json:"household_id"`
	CommuneID   string `json:"commune_id"`
}

// HouseholdRecord is the household-level table built from person records.
// Income is zero until the imputer fills it.
type HouseholdRecord struct {
	HouseholdID      int64         `json:"household_id"`
	CommuneID        string        `json:"commune_id"`
	ConsumptionUnits float64       `json:"consumption_units"`
	PersonCount      int           `json:"person_count"`
	SizeBucket       SizeBucket    `json:"household_size"`
	Type             HouseholdType `json:"household_type"`
	Income           float64       `json:"household_income"`
}

// IncomeAssignment is the final output row of the imputation.
type IncomeAssignment struct {
	HouseholdID      int64   `json:"household_id"`
	HouseholdIncome  float64 `json:"household_income"`
	ConsumptionUnits float64 `json:"consumption_units"`
}
