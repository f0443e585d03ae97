package skills

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	errorsmod "cosmossdk.io/errors"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

var (
	positiveWords = map[string]struct{}{
		"good": {}, "great": {}, "excellent": {}, "amazing": {}, "love": {}, "best": {},
	}
	negativeWords = map[string]struct{}{
		"bad": {}, "terrible": {}, "awful": {}, "hate": {}, "worst": {}, "poor": {},
	}
	stopWords = map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
		"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	}

	wordPattern    = regexp.MustCompile(`\w+`)
	sentenceBreak  = regexp.MustCompile(`[.!?]+`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
)

const (
	// DefaultSummaryLength caps summaries when the request leaves it unset.
	DefaultSummaryLength = 200

	readingWordsPerMinute = 200
)

// SentimentResult classifies text as positive, negative or neutral.
type SentimentResult struct {
	Sentiment string           `json:"sentiment"`
	Score     string           `json:"score"`
	Details   SentimentDetails `json:"details"`
}

// SentimentDetails are the raw counts behind a SentimentResult.
type SentimentDetails struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Total    int `json:"total"`
}

// Keyword is a token and its frequency.
type Keyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// KeywordsResult lists the most frequent keywords.
type KeywordsResult struct {
	Keywords []Keyword `json:"keywords"`
}

// StructureResult wraps text statistics.
type StructureResult struct {
	Analysis Structure `json:"analysis"`
}

// Structure holds counts describing a text.
type Structure struct {
	Characters    int    `json:"characters"`
	Words         int    `json:"words"`
	Sentences     int    `json:"sentences"`
	Paragraphs    int    `json:"paragraphs"`
	AvgWordLength string `json:"avgWordLength"`
	ReadingTime   int    `json:"readingTime"`
}

// SummaryResult is an extractive summary.
type SummaryResult struct {
	Summary          string `json:"summary"`
	OriginalLength   int    `json:"originalLength"`
	SummaryLength    int    `json:"summaryLength"`
	CompressionRatio string `json:"compressionRatio"`
}

// SearchHit is one search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResult lists search hits.
type SearchResult struct {
	Results []SearchHit `json:"results"`
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errorsmod.Wrap(ledger.ErrInvalidInput, "text required")
	}
	return nil
}

// Sentiment counts positive and negative words. The score is the share of
// the winning side among all words, as a percentage with two decimals.
func Sentiment(text string) (SentimentResult, error) {
	if err := requireText(text); err != nil {
		return SentimentResult{}, err
	}
	words := strings.Fields(strings.ToLower(text))
	var pos, neg int
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	res := SentimentResult{
		Sentiment: "neutral",
		Details:   SentimentDetails{Positive: pos, Negative: neg, Total: len(words)},
	}
	score := 0.0
	switch {
	case pos > neg:
		res.Sentiment = "positive"
		score = math.Min(float64(pos)/float64(len(words))*100, 100)
	case neg > pos:
		res.Sentiment = "negative"
		score = math.Min(float64(neg)/float64(len(words))*100, 100)
	}
	res.Score = fmt.Sprintf("%.2f", score)
	return res, nil
}

// ExtractKeywords returns up to ten tokens longer than three characters,
// excluding stop words, by descending frequency. Ties keep first-seen order.
func ExtractKeywords(text string) (KeywordsResult, error) {
	if err := requireText(text); err != nil {
		return KeywordsResult{}, err
	}
	counts := make(map[string]int)
	var order []string
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[word]; stop || utf8.RuneCountInString(word) <= 3 {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	keywords := make([]Keyword, 0, len(order))
	for _, word := range order {
		keywords = append(keywords, Keyword{Word: word, Count: counts[word]})
	}
	sort.SliceStable(keywords, func(i, j int) bool { return keywords[i].Count > keywords[j].Count })
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}
	return KeywordsResult{Keywords: keywords}, nil
}

// AnalyzeStructure counts characters, words, sentences and paragraphs.
func AnalyzeStructure(text string) (StructureResult, error) {
	if err := requireText(text); err != nil {
		return StructureResult{}, err
	}
	words := strings.Fields(text)
	nonSpace := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			nonSpace++
		}
	}
	return StructureResult{Analysis: Structure{
		Characters:    utf8.RuneCountInString(text),
		Words:         len(words),
		Sentences:     len(sentences(text)),
		Paragraphs:    countNonEmpty(paragraphBreak.Split(text, -1)),
		AvgWordLength: fmt.Sprintf("%.2f", float64(nonSpace)/float64(len(words))),
		ReadingTime:   int(math.Ceil(float64(len(words)) / float64(readingWordsPerMinute))),
	}}, nil
}

// Summarize keeps the leading 30% of sentences (at least one) and truncates
// to maxLength characters; maxLength <= 0 means DefaultSummaryLength.
func Summarize(text string, maxLength int) (SummaryResult, error) {
	if err := requireText(text); err != nil {
		return SummaryResult{}, err
	}
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}
	parts := sentences(text)
	if len(parts) == 0 {
		return SummaryResult{}, errorsmod.Wrap(ledger.ErrInvalidInput, "text has no sentences")
	}
	target := len(parts) * 3 / 10
	if target < 1 {
		target = 1
	}
	summary := strings.Join(parts[:target], ". ") + "."
	summaryLen := utf8.RuneCountInString(summary)
	originalLen := utf8.RuneCountInString(text)

	truncated := summary
	if summaryLen > maxLength {
		truncated = string([]rune(summary)[:maxLength])
	}
	return SummaryResult{
		Summary:          truncated,
		OriginalLength:   originalLen,
		SummaryLength:    summaryLen,
		CompressionRatio: fmt.Sprintf("%.1f%%", float64(summaryLen)/float64(originalLen)*100),
	}, nil
}

// Search returns simulated reference results for query.
func Search(query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, errorsmod.Wrap(ledger.ErrInvalidInput, "query required")
	}
	slug := url.PathEscape(query)
	return SearchResult{Results: []SearchHit{
		{Title: query + " - Research Paper", URL: "https://example.com/paper/" + slug, Snippet: "Comprehensive analysis..."},
		{Title: query + " - Documentation", URL: "https://docs.example.com/" + slug, Snippet: "Technical documentation..."},
		{Title: query + " - Tutorial", URL: "https://tutorial.com/" + slug, Snippet: "Step-by-step guide..."},
	}}, nil
}

// sentences splits on runs of terminal punctuation, dropping blank pieces.
func sentences(text string) []string {
	var out []string
	for _, part := range sentenceBreak.Split(text, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func countNonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
