package aggregate

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/property-research/internal/address"
	"github.com/sells-group/property-research/internal/model"
)

// money formats a dollar amount with thousands separators.
func money(v float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("$%d", int64(math.Round(v)))
}

func count(n int) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d", n)
}

func neighborhood(m merged, subject model.ResearchSubject) model.Neighborhood {
	n := model.Neighborhood{}
	if d := m.demographics; d != nil {
		n.MedianIncome = d.MedianIncome
		n.Population = d.Population
	}
	if s := m.schools; s != nil {
		n.SchoolRating = s.AvgRating
	}
	if w := m.walkability; w != nil {
		n.WalkScore = w.WalkScore
		n.TransitScore = w.TransitScore
	}
	if m.noise != nil {
		n.NoiseScore = m.noise.Score
	}
	if t := m.trend; t != nil {
		n.MarketTrend = t.Direction
		n.YoYChangePct = t.YoYChangePct
	}
	n.Narrative = narrative(m, subject)
	return n
}

func narrative(m merged, subject model.ResearchSubject) string {
	area := "The area"
	if subject.City != "" {
		area = address.Normalized{City: subject.City}.DisplayCity()
	}
	p := message.NewPrinter(language.English)

	var parts []string
	if d := m.demographics; d != nil {
		parts = append(parts, p.Sprintf("%s has a median household income of %s and a population of %s.",
			area, money(d.MedianIncome), count(d.Population)))
	}
	if s := m.schools; s != nil && len(s.Schools) > 0 {
		parts = append(parts, p.Sprintf("%d nearby schools average %.1f/10.", len(s.Schools), s.AvgRating))
	}
	if w := m.walkability; w != nil {
		parts = append(parts, p.Sprintf("Walk Score %d, Transit Score %d, Bike Score %d.",
			w.WalkScore, w.TransitScore, w.BikeScore))
	}
	if t := m.trend; t != nil {
		s := p.Sprintf("Prices are trending %s (%+.1f%% year over year)", t.Direction, t.YoYChangePct)
		if t.MedianDOM > 0 {
			s += p.Sprintf(" with a median of %d days on market", t.MedianDOM)
		}
		parts = append(parts, s+".")
	}
	if m.noise != nil {
		parts = append(parts, p.Sprintf("Ambient noise score %d/100.", m.noise.Score))
	}
	if len(parts) == 0 {
		return "Neighborhood data unavailable."
	}
	return strings.Join(parts, " ")
}
