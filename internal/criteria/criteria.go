// Package criteria defines the fixed set of sustainability scoring
// criteria fleetscore collects evidence for. The set, ceilings, and
// keyword groups are static configuration; everything else about a run
// is dynamic.
package criteria

// ID names a scoring criterion.
type ID string

const (
	TotalTruckFleetSize ID = "total_truck_fleet_size"
	CNGFleet            ID = "cng_fleet"
	CNGFleetSize        ID = "cng_fleet_size"
	EmissionReporting   ID = "emission_reporting"
	EmissionGoals       ID = "emission_goals"
	AltFuels            ID = "alt_fuels"
	CleanEnergyPartner  ID = "clean_energy_partner"
	Regulatory          ID = "regulatory"
)

// Criterion is one scoring dimension.
type Criterion struct {
	ID      ID
	Ceiling int
	// Numeric criteria require evidence that carries a count.
	Numeric bool
	// FuzzThreshold is the minimum partial-match similarity (0..100)
	// for quote verification against source text.
	FuzzThreshold int
	// Keywords drive the relevance prefilter, frontier path scoring,
	// and document screening.
	Keywords []string
	// Prompt is the question the analysis oracle answers for this
	// criterion.
	Prompt string
}

var all = []Criterion{
	{
		ID:            TotalTruckFleetSize,
		Ceiling:       3,
		Numeric:       true,
		FuzzThreshold: 55,
		Keywords: []string{
			"fleet", "trucks", "tractors", "trailers", "vehicles",
			"power units", "class 8",
		},
		Prompt: "How many trucks or power units does the company operate in total? Report the count.",
	},
	{
		ID:            CNGFleet,
		Ceiling:       1,
		FuzzThreshold: 65,
		Keywords: []string{
			"cng", "compressed natural gas", "natural gas trucks",
			"natural gas vehicles", "ngv",
		},
		Prompt: "Does the company operate trucks fueled by compressed natural gas (CNG)?",
	},
	{
		ID:            CNGFleetSize,
		Ceiling:       3,
		Numeric:       true,
		FuzzThreshold: 55,
		Keywords: []string{
			"cng trucks", "cng vehicles", "natural gas fleet",
			"compressed natural gas", "cng tractors",
		},
		Prompt: "How many CNG (compressed natural gas) trucks does the company operate? Report the count.",
	},
	{
		ID:            EmissionReporting,
		Ceiling:       1,
		FuzzThreshold: 70,
		Keywords: []string{
			"emissions report", "carbon footprint", "ghg inventory",
			"scope 1", "scope 2", "sustainability report", "cdp", "esg report",
		},
		Prompt: "Does the company publicly report or disclose its greenhouse gas emissions?",
	},
	{
		ID:            EmissionGoals,
		Ceiling:       2,
		FuzzThreshold: 70,
		Keywords: []string{
			"net zero", "carbon neutral", "emission reduction",
			"reduction target", "science based targets", "decarbonization",
		},
		Prompt: "Has the company committed to measurable greenhouse gas reduction goals or targets?",
	},
	{
		ID:            AltFuels,
		Ceiling:       1,
		FuzzThreshold: 65,
		Keywords: []string{
			"renewable diesel", "biodiesel", "electric trucks", "ev",
			"hydrogen", "renewable natural gas", "rng", "biogas",
		},
		Prompt: "Does the company use alternative fuels other than CNG, such as renewable diesel, electricity, or hydrogen?",
	},
	{
		ID:            CleanEnergyPartner,
		Ceiling:       1,
		FuzzThreshold: 65,
		Keywords: []string{
			"clean energy", "renewable energy", "partnership", "solar",
			"wind", "power purchase agreement", "utility partner",
		},
		Prompt: "Does the company have a partnership or agreement with a clean energy provider?",
	},
	{
		ID:            Regulatory,
		Ceiling:       1,
		FuzzThreshold: 60,
		Keywords: []string{
			"epa", "smartway", "carb", "compliance", "emission standards",
			"regulation", "violation", "settlement", "consent decree",
		},
		Prompt: "Is the company subject to notable environmental regulatory actions, certifications, or programs (EPA SmartWay, CARB, settlements)?",
	},
}

var byID = func() map[ID]Criterion {
	m := make(map[ID]Criterion, len(all))
	for _, c := range all {
		m[c.ID] = c
	}
	return m
}()

// All returns every criterion in stable declaration order. The slice is
// a copy; callers may reorder it freely.
func All() []Criterion {
	out := make([]Criterion, len(all))
	copy(out, all)
	return out
}

// Get looks up a criterion by id.
func Get(id ID) (Criterion, bool) {
	c, ok := byID[id]
	return c, ok
}

// Known reports whether id names a defined criterion.
func Known(id ID) bool {
	_, ok := byID[id]
	return ok
}

// Ceiling returns the score ceiling for id, or 0 for unknown ids.
func Ceiling(id ID) int {
	return byID[id].Ceiling
}

// IDs returns every criterion id in stable declaration order.
func IDs() []ID {
	out := make([]ID, len(all))
	for i, c := range all {
		out[i] = c.ID
	}
	return out
}
