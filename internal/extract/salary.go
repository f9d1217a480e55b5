package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"

	"github.com/sells-group/jobintel/internal/model"
)

// Salary parsing requires an explicit money signal (currency symbol or
// ISO code) next to the numbers. Bare number ranges like "89 - 7 people"
// never parse, no matter how range-shaped they look.

var (
	// "$120k - $150k", "€50,000 to €65,000", "USD 90000-110000"
	salaryRangeRe = regexp.MustCompile(
		`(?i)([$€£]|\b(?:USD|EUR|GBP|CAD|AUD)\b)\s*(\d[\d,]*(?:\.\d+)?)\s*([kK])?\s*(?:-|–|—|\bto\b)\s*(?:[$€£]|\b(?:USD|EUR|GBP|CAD|AUD)\b)?\s*(\d[\d,]*(?:\.\d+)?)\s*([kK])?`)

	// "120,000 - 150,000 USD" with the code trailing the range.
	salaryRangeTrailingRe = regexp.MustCompile(
		`(?i)(\d[\d,]*(?:\.\d+)?)\s*([kK])?\s*(?:-|–|—|\bto\b)\s*(\d[\d,]*(?:\.\d+)?)\s*([kK])?\s*\b(USD|EUR|GBP|CAD|AUD)\b`)

	// "$135,000" single figure; only used near a compensation keyword.
	salarySingleRe = regexp.MustCompile(
		`(?i)([$€£]|\b(?:USD|EUR|GBP|CAD|AUD)\b)\s*(\d[\d,]*(?:\.\d+)?)\s*([kK])?`)

	hourlyRe = regexp.MustCompile(`(?i)(?:per\s+hour|/\s*(?:hr|hour)|hourly)`)

	compKeywords = []string{"salary", "compensation", "pay", "base", "range", "annually", "per year", "per hour", "/yr", "/hr"}
)

var symbolCurrency = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// ParseSalary scans text for a compensation range or single figure.
// Returns nil when no validated salary is present.
func ParseSalary(text string) *model.Salary {
	period := "year"
	if hourlyRe.MatchString(text) {
		period = "hour"
	}

	if m := salaryRangeRe.FindStringSubmatch(text); m != nil {
		min := parseAmount(m[2], m[3])
		max := parseAmount(m[4], m[5])
		// "$120k - 150" reads as 120000-150000: the bare side inherits
		// the k scale when it would otherwise be absurdly small.
		if m[3] != "" && m[5] == "" && max < min/100 {
			max *= 1000
		}
		if m[3] == "" && m[5] != "" && min < max/100 {
			min *= 1000
		}
		s := &model.Salary{Min: min, Max: max, Currency: currencyFor(m[1]), Period: period}
		if ValidateSalary(s) == nil {
			return s
		}
		return nil
	}

	if m := salaryRangeTrailingRe.FindStringSubmatch(text); m != nil {
		s := &model.Salary{
			Min:      parseAmount(m[1], m[2]),
			Max:      parseAmount(m[3], m[4]),
			Currency: strings.ToUpper(m[5]),
			Period:   period,
		}
		if ValidateSalary(s) == nil {
			return s
		}
		return nil
	}

	// Single figure needs a compensation keyword nearby to rule out
	// prices, funding amounts, and revenue claims.
	if loc := salarySingleRe.FindStringSubmatchIndex(text); loc != nil {
		m := salarySingleRe.FindStringSubmatch(text)
		if hasCompContext(text, loc[0], loc[1]) {
			v := parseAmount(m[2], m[3])
			s := &model.Salary{Min: v, Max: v, Currency: currencyFor(m[1]), Period: period}
			if ValidateSalary(s) == nil {
				return s
			}
		}
	}

	return nil
}

// ValidateSalary enforces ordering, a sane magnitude band for the pay
// period, and an ISO 4217 currency code.
func ValidateSalary(s *model.Salary) error {
	if s == nil {
		return eris.New("salary: nil")
	}
	if s.Min > s.Max {
		return eris.Errorf("salary: min %.0f exceeds max %.0f", s.Min, s.Max)
	}
	if _, err := currency.ParseISO(s.Currency); err != nil {
		return eris.Wrapf(err, "salary: currency %q", s.Currency)
	}

	lo, hi := 5000.0, 5_000_000.0
	if s.Period == "hour" {
		lo, hi = 5.0, 1000.0
	}
	if s.Min < lo || s.Max > hi {
		return eris.Errorf("salary: %.0f-%.0f outside plausible %s band", s.Min, s.Max, s.Period)
	}
	return nil
}

func parseAmount(num, kSuffix string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0
	}
	if kSuffix != "" {
		v *= 1000
	}
	return v
}

func currencyFor(signal string) string {
	if c, ok := symbolCurrency[signal]; ok {
		return c
	}
	return strings.ToUpper(strings.TrimSpace(signal))
}

func hasCompContext(text string, start, end int) bool {
	lo := start - 60
	if lo < 0 {
		lo = 0
	}
	hi := end + 60
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:hi])
	for _, kw := range compKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}
