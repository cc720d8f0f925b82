package rank

import "sort"

// maxRankPosition is the worst rank a recommended brand can be assigned;
// recommendation order beyond this still counts as 5.
const maxRankPosition = 5

// mentionedRank is the rank given to a brand that is present but never
// detected in a recommendation context.
const mentionedRank = 5

// Result is the extraction outcome for one brand within one scraped
// response.
type Result struct {
	Brand         string
	RankPosition  int // 0-5; 0 = not found
	Snippet       string
	SectionIndex  int // -1 if the brand never appears
	IsRecommended bool
}

// Extract returns one Result per brand in brands, sorted by rank position
// ascending with unranked (absent) brands last.
func Extract(text string, brands []string) []Result {
	if text == "" || len(brands) == 0 {
		results := make([]Result, len(brands))
		for i, b := range brands {
			results[i] = Result{Brand: b, RankPosition: 0, SectionIndex: -1}
		}
		return results
	}

	matcher := NewBrandMatcher(brands)
	sections := splitSections(text)

	type brandInfo struct {
		brand         string
		sectionIndex  int
		isRecommended bool
		firstCharPos  int // -1 if absent
	}

	infos := make([]brandInfo, 0, len(brands))
	for _, brand := range brands {
		section := firstSection(sections, brand, matcher)
		infos = append(infos, brandInfo{
			brand:         brand,
			sectionIndex:  section,
			isRecommended: isRecommended(text, brand),
			firstCharPos:  matcher.FirstPosition(text, brand),
		})
	}

	var recommended, mentionedOnly, absent []brandInfo
	for _, info := range infos {
		switch {
		case info.sectionIndex < 0:
			absent = append(absent, info)
		case info.isRecommended:
			recommended = append(recommended, info)
		default:
			mentionedOnly = append(mentionedOnly, info)
		}
	}
	sort.SliceStable(recommended, func(i, j int) bool { return recommended[i].sectionIndex < recommended[j].sectionIndex })
	sort.SliceStable(mentionedOnly, func(i, j int) bool { return mentionedOnly[i].sectionIndex < mentionedOnly[j].sectionIndex })

	rankOf := make(map[string]int, len(brands))
	rank := 1
	for _, info := range recommended {
		r := rank
		if r > maxRankPosition {
			r = maxRankPosition
		}
		rankOf[info.brand] = r
		rank++
	}
	for _, info := range mentionedOnly {
		rankOf[info.brand] = mentionedRank
	}
	for _, info := range absent {
		rankOf[info.brand] = 0
	}

	results := make([]Result, 0, len(brands))
	for _, info := range infos {
		snippet := ""
		if info.firstCharPos >= 0 {
			snippet = extractSnippet(text, info.firstCharPos)
		}
		results = append(results, Result{
			Brand:         info.brand,
			RankPosition:  rankOf[info.brand],
			Snippet:       snippet,
			SectionIndex:  info.sectionIndex,
			IsRecommended: info.isRecommended,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := sortKey(results[i].RankPosition), sortKey(results[j].RankPosition)
		if ri != rj {
			return ri < rj
		}
		return results[i].Brand < results[j].Brand
	})
	return results
}

// sortKey maps rank 0 (unranked) to the back of the ordering.
func sortKey(rank int) int {
	if rank <= 0 {
		return 999
	}
	return rank
}

func firstSection(sections []string, brand string, matcher *BrandMatcher) int {
	for i, section := range sections {
		if matcher.MatchesSection(section, brand) {
			return i
		}
	}
	return -1
}
