package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanClassifiesExampleDisclosureMetricNames(t *testing.T) {
	text := "We reduced carbon emissions by 35% and increased board diversity to 40% women."
	candidates := scan(text)

	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}

	require.Contains(t, names, "emissions_reduction")
	require.Contains(t, names, "board_diversity")
}

func TestClassifyMetricNameFallsBackToSanitizedSlug(t *testing.T) {
	name := classifyMetricName("some entirely unrelated prose before the number")
	assert.Regexp(t, "^[a-z0-9_]+$", name)
	assert.NotEmpty(t, name)
}

func TestClassifyMetricNameKnownRules(t *testing.T) {
	cases := map[string]string{
		"our scope 1 emissions were":          "scope_1_emissions",
		"renewable energy share reached":      "renewable_energy_share",
		"water consumption dropped to":        "water_consumption",
		"gender pay gap narrowed to":          "gender_pay_gap",
		"net zero target set for":             "net_zero_target",
		"employee turnover rate was":          "employee_turnover",
		"board independence improved to":      "board_independence",
		"workplace injury rate fell to":       "workplace_injury",
	}
	for window, want := range cases {
		assert.Equal(t, want, classifyMetricName(window), window)
	}
}
