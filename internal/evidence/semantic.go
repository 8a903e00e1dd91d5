package evidence

import (
	"strings"

	"github.com/greenproof/fleetscore/internal/criteria"
)

// Term groups for the per-criterion semantic checks. Matching is plain
// lowercase substring; the groups are tuned against the same evidence
// corpus the thresholds came from.
var (
	fuelVolumeTerms = []string{
		"gallon", "gge", "dge", "cubic feet", "scf", "therm",
		"liters of", "fuel consumed", "fuel usage", "fuel purchased",
	}
	vehicleCountTerms = []string{
		"truck", "tractor", "vehicle", "van", "unit", "fleet of", "power units",
	}
	employeeTerms = []string{
		"employee", "team member", "staff", "workforce", "headcount",
	}
	catalogTerms = []string{
		"part number", "sku", "catalog", "filter kit", "accessor",
		"add to cart",
	}
	cngTerms = []string{
		"cng", "compressed natural gas", "natural gas",
	}
	altFuelTerms = []string{
		"renewable diesel", "biodiesel", "electric", "battery", "hydrogen",
		"renewable natural gas", "rng", "biogas", "propane",
	}
	goalTerms = []string{
		"target", "goal", "commit", "pledge", "net zero", "net-zero",
		"carbon neutral", "reduce", "reduction", "by 20",
	}
	reportTerms = []string{
		"report", "disclos", "publish", "cdp", "inventory",
		"scope 1", "scope 2", "footprint",
	}
	partnerTerms = []string{
		"partner", "agreement", "collaborat", "alliance", "contract",
		"joint", "mou", "teamed",
	}
	onSiteTerms = []string{
		"rooftop solar", "solar panels", "on-site solar", "onsite solar",
		"solar array",
	}
	regulatoryTerms = []string{
		"epa", "carb", "smartway", "complian", "regulat", "violation",
		"settlement", "fine", "consent decree", "emission standard",
		"clean air act",
	}
	hiringTerms = []string{
		"now hiring", "job opening", "apply now", "job description",
		"responsibilities include",
	}
	genericClaims = []string{
		"committed to sustainability", "environmentally friendly",
		"eco-friendly", "green initiatives", "protecting the planet",
		"sustainable future", "environmental stewardship",
		"reducing our footprint",
	}
)

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

// isGenericClaim flags quotes that are sustainability boilerplate with
// no concrete fact to score.
func isGenericClaim(quote string) bool {
	q := strings.ToLower(quote)
	return containsAny(q, genericClaims) && !containsDigit(q)
}

// semanticReject applies the criterion-specific category checks. It
// returns a rejection reason, or "" when the finding passes. Rejection
// downgrades to not-found; it is an outcome, not an error.
func semanticReject(c criteria.Criterion, quote, context string) string {
	text := strings.ToLower(quote + " " + context)

	switch c.ID {
	case criteria.TotalTruckFleetSize, criteria.CNGFleetSize:
		if containsAny(text, fuelVolumeTerms) && !containsAny(text, vehicleCountTerms) {
			return "fuel volume, not a vehicle count"
		}
		if containsAny(text, employeeTerms) && !containsAny(text, vehicleCountTerms) {
			return "headcount, not a vehicle count"
		}
		if containsAny(text, catalogTerms) {
			return "parts catalog text"
		}
		if c.ID == criteria.CNGFleetSize {
			if !containsAny(text, cngTerms) && !containsAny(text, altFuelTerms) {
				return "no CNG reference"
			}
		}
	case criteria.CNGFleet:
		if !containsAny(text, cngTerms) && !containsAny(text, altFuelTerms) {
			return "no CNG reference"
		}
	case criteria.AltFuels:
		if !containsAny(text, altFuelTerms) {
			if containsAny(text, cngTerms) || strings.Contains(text, "lng") {
				return "CNG/LNG only; criterion covers other alternative fuels"
			}
			return "no alternative fuel reference"
		}
	case criteria.EmissionGoals:
		if !containsAny(text, goalTerms) {
			return "no reduction goal language"
		}
	case criteria.EmissionReporting:
		if !containsAny(text, reportTerms) {
			return "no disclosure language"
		}
	case criteria.CleanEnergyPartner:
		if containsAny(text, onSiteTerms) && !containsAny(text, partnerTerms) {
			return "on-site generation, not a partnership"
		}
		if !containsAny(text, partnerTerms) {
			return "no partnership context"
		}
	case criteria.Regulatory:
		if containsAny(text, hiringTerms) {
			return "job posting text"
		}
		if !containsAny(text, regulatoryTerms) {
			return "no regulatory reference"
		}
	}
	return ""
}

// altFuelOnly reports whether a CNG-criterion finding talks about other
// alternative fuels without any CNG reference. Such findings survive
// validation but their score is capped at 1.
func altFuelOnly(c criteria.Criterion, quote, context string) bool {
	if c.ID != criteria.CNGFleet && c.ID != criteria.CNGFleetSize {
		return false
	}
	text := strings.ToLower(quote + " " + context)
	return !containsAny(text, cngTerms) && containsAny(text, altFuelTerms)
}
