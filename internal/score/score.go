// Package score computes weighted visibility scores and competitive gaps
// from per-platform brand rankings.
package score

import (
	"math"

	"github.com/levoit/visibilitypipeline/internal/models"
)

// platformWeights gives each platform's contribution to a brand's
// visibility score. Unknown platforms contribute 0.
var platformWeights = map[models.Platform]float64{
	models.PlatformChatGPT:    0.40,
	models.PlatformPerplexity: 0.35,
	models.PlatformGoogleAI:   0.25,
}

// positionScores maps a rank position to its raw point value. Unknown
// positions contribute 0.
var positionScores = map[int]float64{
	1: 100,
	2: 75,
	3: 50,
	4: 30,
	5: 15,
	0: 0,
}

// PlatformRanking is one brand's rank position on one platform, the input
// to VisibilityScore.
type PlatformRanking struct {
	Platform     models.Platform
	RankPosition int
}

// VisibilityScore computes the weighted sum of platform-weight ×
// position-score across rankings, rounded to 2 decimal places.
func VisibilityScore(rankings []PlatformRanking) float64 {
	var total float64
	for _, r := range rankings {
		total += platformWeights[r.Platform] * positionScores[r.RankPosition]
	}
	return round2(total)
}

// PlatformContribution returns the single-platform score contribution used
// for time-series rows: weight(platform) × position_score(rank), rounded
// to 2 decimals.
func PlatformContribution(platform models.Platform, rankPosition int) float64 {
	return round2(platformWeights[platform] * positionScores[rankPosition])
}

// CompetitiveGap computes how far primaryScore leads (positive) or trails
// (negative) the strongest competitor. With no competitors, the gap equals
// the primary score itself.
func CompetitiveGap(primaryScore float64, competitorScores map[string]float64) float64 {
	if len(competitorScores) == 0 {
		return round2(primaryScore)
	}
	max := math.Inf(-1)
	for _, s := range competitorScores {
		if s > max {
			max = s
		}
	}
	return round2(primaryScore - max)
}

func round2(v float64) float64 {
	return Round2(v)
}

// Round2 rounds v to 2 decimal places, matching the precision spec.md §3
// requires of every visibility score and competitive gap.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
