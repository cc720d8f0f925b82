package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateQueryAccepts500Chars(t *testing.T) {
	q := Query{Text: strings.Repeat("a", 500), Brands: []string{"Acme", "Globex"}}
	assert.NoError(t, ValidateQuery(q))
}

func TestValidateQueryRejects501Chars(t *testing.T) {
	q := Query{Text: strings.Repeat("a", 501)}
	assert.ErrorIs(t, ValidateQuery(q), ErrQueryTextTooLong)
}

func TestValidateQueryRejectsDuplicateBrands(t *testing.T) {
	q := Query{Text: "short", Brands: []string{"Acme", "Acme"}}
	assert.Error(t, ValidateQuery(q))
}

func TestPriorityRankOrdering(t *testing.T) {
	assert.Less(t, PriorityRank(PriorityHigh), PriorityRank(PriorityMedium))
	assert.Less(t, PriorityRank(PriorityMedium), PriorityRank(PriorityLow))
}

func TestPriorityRankUnknownSortsLast(t *testing.T) {
	assert.Greater(t, PriorityRank(Priority("unknown")), PriorityRank(PriorityLow))
}
