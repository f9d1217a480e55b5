package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobintel/internal/model"
)

func TestParseSalary_Ranges(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		min, max float64
		currency string
		period   string
	}{
		{"k suffix both sides", "We pay $120k - $150k for this role", 120000, 150000, "USD", "year"},
		{"full amounts", "Salary: $120,000 - $150,000 per year", 120000, 150000, "USD", "year"},
		{"euro symbol", "Compensation €50,000 to €65,000", 50000, 65000, "EUR", "year"},
		{"pound symbol", "£45,000 - £60,000 depending on experience", 45000, 60000, "GBP", "year"},
		{"leading iso code", "USD 90000-110000", 90000, 110000, "USD", "year"},
		{"trailing iso code", "120,000 - 150,000 USD annually", 120000, 150000, "USD", "year"},
		{"bare upper bound inherits k", "$120k - 150 total cash", 120000, 150000, "USD", "year"},
		{"hourly range", "$25 - $35 per hour", 25, 35, "USD", "hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseSalary(tt.text)
			require.NotNil(t, s, "expected a salary from %q", tt.text)
			assert.InDelta(t, tt.min, s.Min, 0.01)
			assert.InDelta(t, tt.max, s.Max, 0.01)
			assert.Equal(t, tt.currency, s.Currency)
			assert.Equal(t, tt.period, s.Period)
		})
	}
}

func TestParseSalary_RejectsNonSalaryRanges(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no money signal", "Join our great team of 89 - 7 people"},
		{"years of experience", "5 - 7 years of experience required"},
		{"min exceeds max", "We pay $150k - $120k"},
		{"implausibly small annual", "$89 - $95 for this full-time position"},
		{"no numbers", "Competitive salary and great benefits"},
		{"funding amount without comp context", "We raised $40M in Series B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParseSalary(tt.text), "expected no salary from %q", tt.text)
		})
	}
}

func TestParseSalary_SingleFigure(t *testing.T) {
	s := ParseSalary("Base salary of $135,000 plus equity")
	require.NotNil(t, s)
	assert.InDelta(t, 135000, s.Min, 0.01)
	assert.InDelta(t, 135000, s.Max, 0.01)
	assert.Equal(t, "USD", s.Currency)

	// Same figure without compensation context is ignored.
	assert.Nil(t, ParseSalary("Our product costs $135,000 for enterprise customers"))
}

func TestValidateSalary(t *testing.T) {
	valid := &model.Salary{Min: 90000, Max: 120000, Currency: "USD", Period: "year"}
	require.NoError(t, ValidateSalary(valid))

	assert.Error(t, ValidateSalary(nil))
	assert.Error(t, ValidateSalary(&model.Salary{Min: 120000, Max: 90000, Currency: "USD", Period: "year"}))
	assert.Error(t, ValidateSalary(&model.Salary{Min: 90000, Max: 120000, Currency: "DOLLARS", Period: "year"}))
	assert.Error(t, ValidateSalary(&model.Salary{Min: 50, Max: 80, Currency: "USD", Period: "year"}))
	assert.Error(t, ValidateSalary(&model.Salary{Min: 9000000, Max: 10000000, Currency: "USD", Period: "year"}))
	assert.Error(t, ValidateSalary(&model.Salary{Min: 2000, Max: 3000, Currency: "USD", Period: "hour"}))

	hourly := &model.Salary{Min: 25, Max: 40, Currency: "USD", Period: "hour"}
	require.NoError(t, ValidateSalary(hourly))
}
