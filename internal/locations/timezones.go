package locations

import "strings"

// stateTimezones overrides the country default for countries spanning
// several zones. Keys are lowercased state/province names or abbreviations.
var stateTimezones = map[string]map[string]string{
	"united states": {
		"dc":                   "America/New_York",
		"district of columbia": "America/New_York",
		"ny":                   "America/New_York",
		"new york":             "America/New_York",
		"ma":                   "America/New_York",
		"massachusetts":        "America/New_York",
		"pa":                   "America/New_York",
		"pennsylvania":         "America/New_York",
		"va":                   "America/New_York",
		"virginia":             "America/New_York",
		"md":                   "America/New_York",
		"maryland":             "America/New_York",
		"ga":                   "America/New_York",
		"georgia":              "America/New_York",
		"fl":                   "America/New_York",
		"florida":              "America/New_York",
		"il":                   "America/Chicago",
		"illinois":             "America/Chicago",
		"tx":                   "America/Chicago",
		"texas":                "America/Chicago",
		"mn":                   "America/Chicago",
		"minnesota":            "America/Chicago",
		"la":                   "America/Chicago",
		"louisiana":            "America/Chicago",
		"co":                   "America/Denver",
		"colorado":             "America/Denver",
		"az":                   "America/Phoenix",
		"arizona":              "America/Phoenix",
		"ca":                   "America/Los_Angeles",
		"california":           "America/Los_Angeles",
		"wa":                   "America/Los_Angeles",
		"washington":           "America/Los_Angeles",
		"or":                   "America/Los_Angeles",
		"oregon":               "America/Los_Angeles",
	},
	"canada": {
		"on":               "America/Toronto",
		"ontario":          "America/Toronto",
		"qc":               "America/Toronto",
		"quebec":           "America/Toronto",
		"bc":               "America/Vancouver",
		"british columbia": "America/Vancouver",
		"ab":               "America/Edmonton",
		"alberta":          "America/Edmonton",
		"mb":               "America/Winnipeg",
		"manitoba":         "America/Winnipeg",
	},
	"australia": {
		"nsw":               "Australia/Sydney",
		"new south wales":   "Australia/Sydney",
		"vic":               "Australia/Melbourne",
		"victoria":          "Australia/Melbourne",
		"qld":               "Australia/Brisbane",
		"queensland":        "Australia/Brisbane",
		"wa":                "Australia/Perth",
		"western australia": "Australia/Perth",
	},
}

// countryTimezones is the single-zone (or capital-zone) fallback per
// country, keyed by lowercased country name.
var countryTimezones = map[string]string{
	"united states":        "America/New_York",
	"usa":                  "America/New_York",
	"united states of america": "America/New_York",
	"canada":               "America/Toronto",
	"mexico":               "America/Mexico_City",
	"united kingdom":       "Europe/London",
	"uk":                   "Europe/London",
	"england":              "Europe/London",
	"ireland":              "Europe/Dublin",
	"france":               "Europe/Paris",
	"germany":              "Europe/Berlin",
	"netherlands":          "Europe/Amsterdam",
	"belgium":              "Europe/Brussels",
	"spain":                "Europe/Madrid",
	"portugal":             "Europe/Lisbon",
	"italy":                "Europe/Rome",
	"switzerland":          "Europe/Zurich",
	"austria":              "Europe/Vienna",
	"poland":               "Europe/Warsaw",
	"czech republic":       "Europe/Prague",
	"czechia":              "Europe/Prague",
	"denmark":              "Europe/Copenhagen",
	"sweden":               "Europe/Stockholm",
	"norway":               "Europe/Oslo",
	"finland":              "Europe/Helsinki",
	"greece":               "Europe/Athens",
	"turkey":               "Europe/Istanbul",
	"israel":               "Asia/Jerusalem",
	"united arab emirates": "Asia/Dubai",
	"india":                "Asia/Kolkata",
	"singapore":            "Asia/Singapore",
	"china":                "Asia/Shanghai",
	"hong kong":            "Asia/Hong_Kong",
	"taiwan":               "Asia/Taipei",
	"japan":                "Asia/Tokyo",
	"south korea":          "Asia/Seoul",
	"thailand":             "Asia/Bangkok",
	"vietnam":              "Asia/Ho_Chi_Minh",
	"australia":            "Australia/Sydney",
	"new zealand":          "Pacific/Auckland",
	"brazil":               "America/Sao_Paulo",
	"argentina":            "America/Argentina/Buenos_Aires",
	"chile":                "America/Santiago",
	"colombia":             "America/Bogota",
	"peru":                 "America/Lima",
	"south africa":         "Africa/Johannesburg",
	"egypt":                "Africa/Cairo",
	"kenya":                "Africa/Nairobi",
	"nigeria":              "Africa/Lagos",
	"morocco":              "Africa/Casablanca",
	"russia":               "Europe/Moscow",
}

// lookupTimezone returns the IANA zone for (country, state) from the
// static tables, or "" when the country is unknown.
func lookupTimezone(country, state string) string {
	ckey := strings.ToLower(strings.TrimSpace(country))
	if ckey == "" {
		return ""
	}
	if states, ok := stateTimezones[ckey]; ok && state != "" {
		if tz, ok := states[strings.ToLower(strings.TrimSpace(state))]; ok {
			return tz
		}
	}
	return countryTimezones[ckey]
}
