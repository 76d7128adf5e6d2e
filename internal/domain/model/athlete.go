// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// DistanceCategory identifies a triathlon race distance.
type DistanceCategory string

const (
	DistanceSprint  DistanceCategory = "sprint"
	DistanceOlympic DistanceCategory = "olympic"
	DistanceHalf    DistanceCategory = "70.3"
	DistanceFull    DistanceCategory = "140.6"
)

// DistanceCategories lists the supported categories, shortest first.
var DistanceCategories = []DistanceCategory{DistanceSprint, DistanceOlympic, DistanceHalf, DistanceFull}

// Valid reports whether d is a supported category.
func (d DistanceCategory) Valid() bool {
	switch d {
	case DistanceSprint, DistanceOlympic, DistanceHalf, DistanceFull:
		return true
	}
	return false
}

// ParseDistanceCategory accepts the canonical names plus the common aliases
// "half", "full" and "ironman".
func ParseDistanceCategory(s string) (DistanceCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sprint":
		return DistanceSprint, nil
	case "olympic", "standard":
		return DistanceOlympic, nil
	case "70.3", "half", "half-ironman":
		return DistanceHalf, nil
	case "140.6", "full", "ironman":
		return DistanceFull, nil
	}
	return "", fmt.Errorf("unknown distance category %q", s)
}

// Gender used for cohort lookup and demographic baselines. The empty value
// means "not provided" and maps to the all-athlete cohort.
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// ExperienceLevel is the self-reported training background.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
	ExperienceElite        ExperienceLevel = "elite"
)

// AthleteProfile holds optional physiological inputs. A nil field means the
// athlete did not provide it; nothing here is ever defaulted.
type AthleteProfile struct {
	FTPWatts                 *float64         `json:"ftp_watts,omitempty" validate:"omitempty,gt=0,lte=700"`
	RunThresholdPaceSecPerKm *float64         `json:"run_threshold_pace_sec_per_km,omitempty" validate:"omitempty,gte=120,lte=900"`
	SwimCSSSecPer100m        *float64         `json:"swim_css_sec_per_100m,omitempty" validate:"omitempty,gte=50,lte=300"`
	BodyMassKg               *float64         `json:"body_mass_kg,omitempty" validate:"omitempty,gte=30,lte=200"`
	MaxHR                    *int             `json:"max_hr,omitempty" validate:"omitempty,gte=100,lte=240"`
	RestingHR                *int             `json:"resting_hr,omitempty" validate:"omitempty,gte=25,lte=120"`
	Gender                   *Gender          `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	Age                      *int             `json:"age,omitempty" validate:"omitempty,gte=12,lte=100"`
	Experience               *ExperienceLevel `json:"experience,omitempty" validate:"omitempty,oneof=beginner intermediate advanced elite"`
}

// GenderOrUnknown returns the athlete gender or GenderUnknown.
func (a AthleteProfile) GenderOrUnknown() Gender {
	if a.Gender == nil {
		return GenderUnknown
	}
	return *a.Gender
}

// PriorRace is a past result. It is usable for prediction only when the
// category is known and the finish time is positive.
type PriorRace struct {
	Category      *DistanceCategory `json:"category,omitempty"`
	FinishSeconds int               `json:"finish_seconds"`
	Year          int               `json:"year,omitempty"`
}

// Usable reports whether the race can anchor a prediction.
func (r PriorRace) Usable() bool {
	return r.Category != nil && r.Category.Valid() && r.FinishSeconds > 0
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
