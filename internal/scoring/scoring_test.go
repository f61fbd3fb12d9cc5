package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLowercasesAndStripsPunctuation(t *testing.T) {
	got := Normalize("Net Zero!! Scope-1 Emissions, 2030?")
	assert.NotContains(t, got, "!")
	assert.NotContains(t, got, "?")
	assert.Contains(t, got, "net zero")
}

func TestScoreWeightsDomainCriticalPhrasesDouble(t *testing.T) {
	withCritical := Score("our net zero commitment drives everything we do", 0)
	withDefault := Score("our emissions commitment drives everything we do", 0)

	assert.Greater(t, withCritical.Environmental, withDefault.Environmental)
}

func TestScoreCapsRepeatedPhraseOccurrences(t *testing.T) {
	repeated := "net zero net zero net zero net zero net zero net zero net zero net zero"
	once := "net zero"

	repeatedResult := Score(repeated, 0)
	onceResult := Score(once, 0)

	// maxOccurrencesPerPhrase caps contribution at 5, so 8 repeats should
	// score the same as 5 repeats' raw total, strictly more than one.
	assert.Greater(t, repeatedResult.Environmental, onceResult.Environmental)
	assert.LessOrEqual(t, repeatedResult.Environmental, 100.0)
}

func TestScoreOverallIsAverageOfPillars(t *testing.T) {
	res := Score("net zero board diversity anti-corruption", 0)
	expected := round1((res.Environmental + res.Social + res.Governance) / 3)
	assert.Equal(t, expected, res.Overall)
}

func TestScoreSentimentAdjustmentIsCapped(t *testing.T) {
	base := Score("net zero", 0)
	boosted := Score("net zero", 1.0)
	assert.LessOrEqual(t, boosted.Overall-base.Overall, 5.1)
}
