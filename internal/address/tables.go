package address

// abbrToState maps lowercase state abbreviations to lowercase full names.
var abbrToState = map[string]string{
	"al": "alabama", "ak": "alaska", "az": "arizona", "ar": "arkansas",
	"ca": "california", "co": "colorado", "ct": "connecticut", "de": "delaware",
	"fl": "florida", "ga": "georgia", "hi": "hawaii", "id": "idaho",
	"il": "illinois", "in": "indiana", "ia": "iowa", "ks": "kansas",
	"ky": "kentucky", "la": "louisiana", "me": "maine", "md": "maryland",
	"ma": "massachusetts", "mi": "michigan", "mn": "minnesota", "ms": "mississippi",
	"mo": "missouri", "mt": "montana", "ne": "nebraska", "nv": "nevada",
	"nh": "new hampshire", "nj": "new jersey", "nm": "new mexico", "ny": "new york",
	"nc": "north carolina", "nd": "north dakota", "oh": "ohio", "ok": "oklahoma",
	"or": "oregon", "pa": "pennsylvania", "ri": "rhode island", "sc": "south carolina",
	"sd": "south dakota", "tn": "tennessee", "tx": "texas", "ut": "utah",
	"vt": "vermont", "va": "virginia", "wa": "washington", "wv": "west virginia",
	"wi": "wisconsin", "wy": "wyoming", "dc": "district of columbia",
}

// stateToAbbr maps lowercase full names to lowercase abbreviations.
var stateToAbbr = func() map[string]string {
	m := make(map[string]string, len(abbrToState))
	for abbr, full := range abbrToState {
		m[full] = abbr
	}
	return m
}()

// suffixes maps USPS street suffixes (full and common variants) to their
// standard abbreviation.
var suffixes = map[string]string{
	"STREET": "ST", "STR": "ST", "ST": "ST",
	"AVENUE": "AVE", "AV": "AVE", "AVEN": "AVE", "AVE": "AVE",
	"BOULEVARD": "BLVD", "BOUL": "BLVD", "BLVD": "BLVD",
	"DRIVE": "DR", "DRV": "DR", "DR": "DR",
	"ROAD": "RD", "RD": "RD",
	"LANE": "LN", "LN": "LN",
	"COURT": "CT", "CRT": "CT", "CT": "CT",
	"CIRCLE": "CIR", "CIRC": "CIR", "CIR": "CIR",
	"PLACE": "PL", "PL": "PL",
	"TERRACE": "TER", "TERR": "TER", "TER": "TER",
	"PARKWAY": "PKWY", "PKY": "PKWY", "PKWY": "PKWY",
	"HIGHWAY": "HWY", "HWAY": "HWY", "HWY": "HWY",
	"TRAIL": "TRL", "TR": "TRL", "TRL": "TRL",
	"WAY": "WAY", "WY": "WAY",
	"SQUARE": "SQ", "SQ": "SQ",
	"LOOP": "LOOP",
	"PIKE": "PIKE",
	"ALLEY": "ALY", "ALY": "ALY",
	"CROSSING": "XING", "XING": "XING",
	"POINT": "PT", "PT": "PT",
	"COVE": "CV", "CV": "CV",
	"RUN": "RUN",
	"PATH": "PATH",
	"PLAZA": "PLZ", "PLZ": "PLZ",
}

// directionals maps compass words to their abbreviation.
var directionals = map[string]string{
	"NORTH": "N", "SOUTH": "S", "EAST": "E", "WEST": "W",
	"NORTHEAST": "NE", "NORTHWEST": "NW", "SOUTHEAST": "SE", "SOUTHWEST": "SW",
	"N": "N", "S": "S", "E": "E", "W": "W",
	"NE": "NE", "NW": "NW", "SE": "SE", "SW": "SW",
}

// unitDesignators maps secondary unit words to their abbreviation.
var unitDesignators = map[string]string{
	"APARTMENT": "APT", "APT": "APT",
	"SUITE": "STE", "STE": "STE",
	"UNIT": "UNIT",
	"BUILDING": "BLDG", "BLDG": "BLDG",
	"FLOOR": "FL", "FL": "FL",
	"#": "#",
}
