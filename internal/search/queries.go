package search

import (
	"fmt"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// criterionQueryTemplates holds two query shapes per criterion; %s is
// the entity name.
var criterionQueryTemplates = map[criteria.ID][]string{
	criteria.TotalTruckFleetSize: {
		`"%s" number of trucks fleet size`,
		`"%s" fleet size power units tractors`,
	},
	criteria.CNGFleet: {
		`"%s" CNG trucks compressed natural gas`,
		`"%s" natural gas vehicles fleet`,
	},
	criteria.CNGFleetSize: {
		`"%s" CNG truck count fleet`,
		`"%s" compressed natural gas fleet size`,
	},
	criteria.EmissionReporting: {
		`"%s" sustainability report emissions`,
		`"%s" greenhouse gas emissions disclosure`,
	},
	criteria.EmissionGoals: {
		`"%s" emission reduction target`,
		`"%s" net zero carbon neutral goal`,
	},
	criteria.AltFuels: {
		`"%s" electric trucks renewable diesel`,
		`"%s" alternative fuel vehicles hydrogen`,
	},
	criteria.CleanEnergyPartner: {
		`"%s" clean energy partnership`,
		`"%s" renewable energy agreement utility`,
	},
	criteria.Regulatory: {
		`"%s" EPA SmartWay CARB certification`,
		`"%s" environmental compliance settlement`,
	},
}

// CriterionQueries returns the web queries used to hunt evidence for
// one criterion about the entity.
func CriterionQueries(entity string, id criteria.ID) []string {
	templates, ok := criterionQueryTemplates[id]
	if !ok {
		return nil
	}
	queries := make([]string, 0, len(templates))
	for _, tpl := range templates {
		queries = append(queries, fmt.Sprintf(tpl, entity))
	}
	return queries
}

// ReportQueries returns the document-discovery queries for the
// priority-sources phase, aimed at published PDF reports.
func ReportQueries(entity string) []string {
	return []string{
		fmt.Sprintf(`"%s" sustainability report filetype:pdf`, entity),
		fmt.Sprintf(`"%s" ESG report filetype:pdf`, entity),
		fmt.Sprintf(`"%s" corporate responsibility report filetype:pdf`, entity),
	}
}
