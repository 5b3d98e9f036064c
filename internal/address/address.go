// Package address normalizes free-form US street addresses into the
// canonical form used to identify research subjects.
package address

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/property-research/internal/model"
)

// Input is the caller-supplied address. City, State and Zip are optional when
// Street already carries them ("123 Main St, Austin, TX 78701").
type Input struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Normalized is a canonical address.
type Normalized struct {
	Raw        string
	Street     string
	City       string
	State      string
	PostalCode string
}

// Key returns the canonical lookup key, e.g. "123 MAIN ST, AUSTIN, TX 78701".
func (n Normalized) Key() string {
	var b strings.Builder
	b.WriteString(n.Street)
	if n.City != "" {
		b.WriteString(", ")
		b.WriteString(n.City)
	}
	if n.State != "" {
		b.WriteString(", ")
		b.WriteString(n.State)
	}
	if n.PostalCode != "" {
		if n.State != "" {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(n.PostalCode)
	}
	return b.String()
}

// Subject converts the normalized address into a research subject.
func (n Normalized) Subject() model.ResearchSubject {
	return model.ResearchSubject{
		NormalizedAddress: n.Key(),
		RawAddress:        n.Raw,
		Street:            n.Street,
		City:              n.City,
		State:             n.State,
		PostalCode:        n.PostalCode,
	}
}

// DisplayCity returns the city in title case for rendering.
func (n Normalized) DisplayCity() string {
	return cases.Title(language.AmericanEnglish).String(strings.ToLower(n.City))
}

var (
	zipRe      = regexp.MustCompile(`^(\d{5})(?:-?\d{4})?$`)
	houseNumRe = regexp.MustCompile(`^\d+[A-Z]?(?:-\d+)?$`)
)

// Normalize canonicalizes an address. It fails with model.ErrInvalidAddress
// when no street number and street name can be identified.
func Normalize(in Input) (Normalized, error) {
	raw := strings.TrimSpace(strings.Join(nonEmpty(in.Street, in.City, in.State, in.Zip), ", "))
	if raw == "" {
		return Normalized{}, eris.Wrap(model.ErrInvalidAddress, "address is empty")
	}

	parts := splitParts(clean(in.Street))
	if len(parts) == 0 {
		return Normalized{}, eris.Wrapf(model.ErrInvalidAddress, "%q has no street", raw)
	}

	out := Normalized{Raw: raw}
	street := parts[0]
	rest := parts[1:]

	// "123 MAIN ST, APT 4, ..." keys the same as "123 MAIN ST APT 4, ...".
	for len(rest) > 0 && isUnitPart(rest[0]) {
		street += " " + rest[0]
		rest = rest[1:]
	}

	// Trailing "STATE ZIP", "CITY STATE ZIP", "CITY ZIP", "ZIP" or "STATE"
	// parts embedded in the street line.
	for len(rest) > 0 {
		city, state, zip, ok := parseStateZip(rest[len(rest)-1])
		if !ok || (state != "" && out.State != "") || (zip != "" && out.PostalCode != "") {
			break
		}
		if state != "" {
			out.State = state
		}
		if zip != "" {
			out.PostalCode = zip
		}
		if city != "" {
			rest[len(rest)-1] = city
			break
		}
		rest = rest[:len(rest)-1]
	}
	if len(rest) > 0 {
		out.City = strings.Join(rest, " ")
	}

	if c := clean(in.City); c != "" {
		out.City = c
	}
	if s := clean(in.State); s != "" {
		abbr, ok := StateAbbr(s)
		if !ok {
			return Normalized{}, eris.Wrapf(model.ErrInvalidAddress, "unknown state %q", in.State)
		}
		out.State = abbr
	}
	if z := strings.TrimSpace(in.Zip); z != "" {
		m := zipRe.FindStringSubmatch(z)
		if m == nil {
			return Normalized{}, eris.Wrapf(model.ErrInvalidAddress, "invalid postal code %q", in.Zip)
		}
		out.PostalCode = m[1]
	}

	s, err := normalizeStreet(street)
	if err != nil {
		return Normalized{}, eris.Wrapf(err, "%q", raw)
	}
	out.Street = s
	return out, nil
}

func normalizeStreet(street string) (string, error) {
	tokens := strings.Fields(street)
	if len(tokens) < 2 || !houseNumRe.MatchString(tokens[0]) {
		return "", eris.Wrap(model.ErrInvalidAddress, "street needs a house number and a name")
	}

	// The suffix is the last token before any unit designator.
	end := len(tokens)
	for i := 2; i < len(tokens); i++ {
		if _, ok := unitDesignators[tokens[i]]; ok {
			end = i
			break
		}
	}
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case i >= end:
			if abbr, ok := unitDesignators[tok]; ok {
				tokens[i] = abbr
			}
		case i == end-1 && i > 1:
			if abbr, ok := suffixes[tok]; ok {
				tokens[i] = abbr
			} else if abbr, ok := directionals[tok]; ok {
				tokens[i] = abbr
			}
		default:
			if abbr, ok := directionals[tok]; ok {
				tokens[i] = abbr
			}
		}
	}
	return strings.Join(tokens, " "), nil
}

// parseStateZip recognizes "TX 78701", "TEXAS", "78701" and "TX". When a zip
// is present, leading text that is not a state is returned as the city, so
// "AUSTIN 78701" and "AUSTIN TX 78701" both yield city AUSTIN.
func parseStateZip(part string) (city, state, zip string, ok bool) {
	fields := strings.Fields(part)
	if len(fields) == 0 {
		return "", "", "", false
	}
	if m := zipRe.FindStringSubmatch(fields[len(fields)-1]); m != nil {
		zip = m[1]
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return "", "", zip, zip != ""
	}
	if abbr, found := StateAbbr(strings.Join(fields, " ")); found {
		return "", abbr, zip, true
	}
	if zip == "" {
		return "", "", "", false
	}
	// Longest state name first: "DISTRICT OF COLUMBIA", "NEW YORK", "TX".
	for n := min(3, len(fields)-1); n >= 1; n-- {
		if abbr, found := StateAbbr(strings.Join(fields[len(fields)-n:], " ")); found {
			return strings.Join(fields[:len(fields)-n], " "), abbr, zip, true
		}
	}
	return strings.Join(fields, " "), "", zip, true
}

// isUnitPart reports whether a comma-separated part is a unit such as
// "APT 4", "STE 200" or "# 4".
func isUnitPart(part string) bool {
	fields := strings.Fields(part)
	if len(fields) == 0 {
		return false
	}
	_, ok := unitDesignators[fields[0]]
	return ok
}

// StateAbbr returns the upper-case USPS abbreviation for a state given either
// its abbreviation or full name.
func StateAbbr(s string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if _, ok := abbrToState[lower]; ok {
		return strings.ToUpper(lower), true
	}
	if abbr, ok := stateToAbbr[lower]; ok {
		return strings.ToUpper(abbr), true
	}
	return "", false
}

// clean folds accents, drops punctuation other than the separators we split
// on, collapses whitespace and upper-cases.
func clean(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r == ',' || r == '\n':
			b.WriteRune(',')
		case r == '#':
			b.WriteString(" # ")
		case r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(b.String(), ",", " , ")), " ")
}

func splitParts(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
