package summarize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"dualmind/internal/domain"
)

var sentenceBreak = regexp.MustCompile(`[.!?]+`)

// numberedItem matches "1." or "2)" list markers at the start of a line.
// Sentence splitting would cut them off, so they become bullets first.
var numberedItem = regexp.MustCompile(`(?m)^[ \t]*\d{1,2}[.)][ \t]+`)

var pointIndicators = []string{
	"the main", "the key", "the primary", "the most important", "the central",
	"in summary", "in conclusion", "to conclude", "overall", "the purpose",
	"the objective", "the goal", "the result", "the finding", "the outcome",
	"it is important", "it is essential", "it is critical", "it is necessary",
	"research shows", "studies indicate", "evidence suggests", "data reveals",
}

var insightIndicators = []string{
	"this suggests", "this indicates", "this shows", "this demonstrates",
	"therefore", "thus", "hence", "consequently", "as a result",
	"it appears", "it seems", "evidence shows", "analysis reveals",
	"findings suggest", "research indicates", "studies show",
	"implications", "significance", "importance", "impact",
}

var actionIndicators = []string{
	"should", "must", "need to", "recommend", "suggest", "propose",
	"it is recommended", "it is suggested", "it is advisable",
	"next steps", "action items", "implementation", "follow up",
	"consider", "ensure", "implement", "establish", "develop",
	"future work", "further research", "next phase",
}

var importantKeywords = []string{
	"important", "significant", "key", "main", "primary", "essential", "critical",
	"conclusion", "result", "finding", "discovery", "breakthrough", "analysis",
	"summary", "overview", "objective", "goal", "purpose", "recommendation",
	"solution", "problem", "issue", "challenge", "opportunity", "benefit",
	"advantage", "strategy", "approach", "method", "technique", "process",
}

var bulletPrefixes = []string{"•", "-", "*"}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by from up about
		into through during before after above below between among this that these those
		i me my myself we our ours ourselves you your yours yourself he him his himself
		she her hers herself it its itself they them their theirs themselves what which
		who whom whose am is are was were be been being have has had having do does did
		doing will would could should may might must can shall`) {
		stopWords[w] = struct{}{}
	}
}

const (
	minSentenceChars = 10
	minPointChars    = 15
	fallbackPoints   = 5
	fallbackTrigger  = 3
	keywordLimit     = 10
)

// Analyze extracts main points, insights and action items from text.
// Sections hold at most the target count and never invent entries.
func Analyze(text string, targets domain.SummaryTargets) domain.AnalysisResult {
	sentences := SplitSentences(numberedItem.ReplaceAllString(text, "• "))
	return domain.AnalysisResult{
		MainPoints:  limit(mainPoints(sentences), targets.MainPoints),
		KeyInsights: limit(matching(sentences, insightIndicators, 25, 280), targets.KeyInsights),
		ActionItems: limit(matching(sentences, actionIndicators, 20, 250), targets.ActionItems),
	}
}

// SplitSentences splits on runs of terminal punctuation and keeps pieces
// longer than ten characters, whitespace collapsed.
func SplitSentences(text string) []string {
	var out []string
	for _, part := range sentenceBreak.Split(text, -1) {
		s := strings.Join(strings.Fields(part), " ")
		if utf8.RuneCountInString(s) > minSentenceChars {
			out = append(out, s)
		}
	}
	return out
}

func mainPoints(sentences []string) []string {
	var points []string
	for _, s := range sentences {
		lower := strings.ToLower(s)
		n := utf8.RuneCountInString(s)
		if containsAny(lower, pointIndicators) && n >= 30 && n <= 300 {
			points = append(points, s)
		}
		if hasAnyPrefix(s, bulletPrefixes) && n >= 20 && n <= 250 {
			points = append(points, s)
		}
	}
	if len(points) < fallbackTrigger {
		important := importantSentences(sentences)
		if len(important) > fallbackPoints {
			important = important[:fallbackPoints]
		}
		points = append(points, important...)
	}

	seen := make(map[string]struct{}, len(points))
	unique := points[:0:0]
	for _, p := range points {
		if _, ok := seen[p]; ok || utf8.RuneCountInString(p) <= minPointChars {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

func matching(sentences, indicators []string, minLen, maxLen int) []string {
	var out []string
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if n < minLen || n > maxLen {
			continue
		}
		if containsAny(strings.ToLower(s), indicators) {
			out = append(out, s)
		}
	}
	return out
}

type scored struct {
	score int
	index int
	text  string
}

// importantSentences ranks sentences by length, position, vocabulary and
// structure, then picks up to five that are at least three sentences apart.
func importantSentences(sentences []string) []string {
	total := float64(len(sentences))
	ranked := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		lower := strings.ToLower(s)
		n := utf8.RuneCountInString(s)
		score := 0

		switch {
		case n >= 40 && n <= 250:
			score += 3
		case n >= 20 && n <= 400:
			score += 2
		case n > 10:
			score++
		}

		pos := float64(i)
		switch {
		case pos < total*0.15, pos > total*0.85:
			score += 2
		case pos >= total*0.4 && pos <= total*0.6:
			score++
		}

		for _, kw := range importantKeywords {
			if strings.Contains(lower, kw) {
				score += 2
			}
		}
		if hasAnyPrefix(s, []string{"The main", "The key", "The primary", "The most important", "In conclusion", "To summarize"}) {
			score += 3
		}
		if hasAnyPrefix(s, []string{"However", "Therefore", "Thus", "Furthermore", "Moreover", "Additionally"}) {
			score += 2
		}
		if strings.Count(s, ",") > 2 {
			score++
		}
		if strings.IndexFunc(s, unicode.IsDigit) >= 0 {
			score++
		}
		if containsAny(lower, []string{"percent", "%", "data", "statistics", "study", "research"}) {
			score += 2
		}
		ranked = append(ranked, scored{score: score, index: i, text: s})
	}

	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	var picked []string
	var indices []int
	for _, r := range ranked {
		if len(picked) >= fallbackPoints {
			break
		}
		near := false
		for _, idx := range indices {
			if abs(r.index-idx) < 3 {
				near = true
				break
			}
		}
		if !near {
			picked = append(picked, r.text)
			indices = append(indices, r.index)
		}
	}
	return picked
}

// Keywords returns up to ten frequent non-stop-words longer than three
// letters that occur more than once, most frequent first.
func Keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if _, stop := stopWords[w]; stop || utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] > counts[order[b]] })
	var out []string
	for _, w := range order {
		if len(out) == keywordLimit || counts[w] < 2 {
			break
		}
		out = append(out, w)
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func limit(items []string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	if len(items) > n {
		items = items[:n]
	}
	if items == nil {
		return []string{}
	}
	return items
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
