package cohort

import "github.com/okian/raceday/internal/domain/model"

// DefaultVersion identifies the built-in table.
const DefaultVersion = "builtin-2024.1"

// defaultRows are finish-time quartiles in seconds by distance and gender.
var defaultRows = []Row{
	{Key{model.DistanceSprint, model.GenderUnknown}, Breakpoints{4200, 4800, 5600}},
	{Key{model.DistanceSprint, model.GenderMale}, Breakpoints{3900, 4500, 5300}},
	{Key{model.DistanceSprint, model.GenderFemale}, Breakpoints{4400, 5100, 6000}},

	{Key{model.DistanceOlympic, model.GenderUnknown}, Breakpoints{7600, 8700, 10200}},
	{Key{model.DistanceOlympic, model.GenderMale}, Breakpoints{7000, 8100, 9500}},
	{Key{model.DistanceOlympic, model.GenderFemale}, Breakpoints{8100, 9300, 10900}},

	{Key{model.DistanceHalf, model.GenderUnknown}, Breakpoints{17100, 19800, 23400}},
	{Key{model.DistanceHalf, model.GenderMale}, Breakpoints{16400, 18900, 22100}},
	{Key{model.DistanceHalf, model.GenderFemale}, Breakpoints{18800, 21600, 25300}},

	{Key{model.DistanceFull, model.GenderUnknown}, Breakpoints{35200, 40500, 47400}},
	{Key{model.DistanceFull, model.GenderMale}, Breakpoints{32900, 37800, 44200}},
	{Key{model.DistanceFull, model.GenderFemale}, Breakpoints{37600, 43200, 50500}},
}

// DefaultTable returns the built-in cohort table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultVersion, defaultRows)
	if err != nil {
		panic("cohort: invalid built-in table: " + err.Error())
	}
	return t
}
