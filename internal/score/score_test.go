package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/levoit/visibilitypipeline/internal/models"
)

func TestVisibilityScoreWeightsAndPositions(t *testing.T) {
	rankings := []PlatformRanking{
		{Platform: models.PlatformChatGPT, RankPosition: 1},
		{Platform: models.PlatformPerplexity, RankPosition: 2},
		{Platform: models.PlatformGoogleAI, RankPosition: 0},
	}
	// 0.40*100 + 0.35*75 + 0.25*0 = 40 + 26.25 = 66.25
	assert.Equal(t, 66.25, VisibilityScore(rankings))
}

func TestVisibilityScoreEmpty(t *testing.T) {
	assert.Equal(t, 0.0, VisibilityScore(nil))
}

func TestVisibilityScoreUnknownPlatformContributesZero(t *testing.T) {
	rankings := []PlatformRanking{{Platform: models.Platform("unknown"), RankPosition: 1}}
	assert.Equal(t, 0.0, VisibilityScore(rankings))
}

func TestPlatformContribution(t *testing.T) {
	assert.Equal(t, 26.25, PlatformContribution(models.PlatformPerplexity, 2))
	assert.Equal(t, 0.0, PlatformContribution(models.PlatformChatGPT, 0))
}

func TestCompetitiveGapPositive(t *testing.T) {
	gap := CompetitiveGap(80, map[string]float64{"a": 60, "b": 70})
	assert.Equal(t, 10.0, gap)
}

func TestCompetitiveGapNegative(t *testing.T) {
	gap := CompetitiveGap(50, map[string]float64{"a": 90})
	assert.Equal(t, -40.0, gap)
}

func TestCompetitiveGapNoCompetitors(t *testing.T) {
	assert.Equal(t, 66.25, CompetitiveGap(66.25, nil))
}
