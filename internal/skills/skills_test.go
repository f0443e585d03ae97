package skills

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

const samplePage = `<!doctype html>
<html><head><title>Example Domain</title></head>
<body>
<h1>Example   Domain</h1>
<p>This domain is for use in <a href="/docs">illustrative</a> examples.</p>
<h2>More</h2>
<p>Second paragraph.</p>
<a>no target</a>
<a href="https://www.iana.org/domains/example">More information...</a>
</body></html>`

func TestSentiment(t *testing.T) {
	res, err := Sentiment("This is a great and amazing product, the best")
	require.NoError(t, err)
	require.Equal(t, "positive", res.Sentiment)
	require.Equal(t, 3, res.Details.Positive)
	require.Equal(t, 9, res.Details.Total)
	require.Equal(t, "33.33", res.Score)

	res, err = Sentiment("bad terrible good")
	require.NoError(t, err)
	require.Equal(t, "negative", res.Sentiment)
	require.Equal(t, "66.67", res.Score)

	res, err = Sentiment("nothing to see")
	require.NoError(t, err)
	require.Equal(t, "neutral", res.Sentiment)
	require.Equal(t, "0.00", res.Score)

	_, err = Sentiment("   ")
	require.True(t, errors.Is(err, ledger.ErrInvalidInput))
}

func TestExtractKeywords(t *testing.T) {
	res, err := ExtractKeywords("Agents trade services. Agents earn money; money flows to agents and the market.")
	require.NoError(t, err)
	require.Equal(t, []Keyword{
		{Word: "agents", Count: 3},
		{Word: "money", Count: 2},
		{Word: "trade", Count: 1},
		{Word: "services", Count: 1},
		{Word: "earn", Count: 1},
		{Word: "flows", Count: 1},
		{Word: "market", Count: 1},
	}, res.Keywords)

	var words []string
	for i := 0; i < 15; i++ {
		words = append(words, fmt.Sprintf("word%02d", i))
	}
	res, err = ExtractKeywords(strings.Join(words, " "))
	require.NoError(t, err)
	require.Len(t, res.Keywords, 10)
}

func TestAnalyzeStructure(t *testing.T) {
	res, err := AnalyzeStructure("One two three. Four five!\n\nSix seven eight nine?")
	require.NoError(t, err)
	a := res.Analysis
	require.Equal(t, 9, a.Words)
	require.Equal(t, 3, a.Sentences)
	require.Equal(t, 2, a.Paragraphs)
	require.Equal(t, 1, a.ReadingTime)
	require.Equal(t, "4.33", a.AvgWordLength)
}

func TestSummarize(t *testing.T) {
	text := "First point. Second point. Third point. Fourth point. Fifth point. Sixth point. Seventh point."
	res, err := Summarize(text, 0)
	require.NoError(t, err)
	require.Equal(t, "First point. Second point.", res.Summary)
	require.Equal(t, len(text), res.OriginalLength)

	res, err = Summarize("Just one sentence without a stop", 10)
	require.NoError(t, err)
	require.Equal(t, "Just one s", res.Summary)
	require.Equal(t, 33, res.SummaryLength)
}

func TestSearch(t *testing.T) {
	res, err := Search("ai agents")
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	require.Equal(t, "ai agents - Research Paper", res.Results[0].Title)
	require.Equal(t, "https://example.com/paper/ai%20agents", res.Results[0].URL)

	_, err = Search("")
	require.True(t, errors.Is(err, ledger.ErrInvalidInput))
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(strings.NewReader(samplePage))
	require.NoError(t, err)
	require.Equal(t, "Example Domain", page.Title)
	require.Equal(t, []string{"Example Domain", "More"}, page.Headings)
	require.Equal(t, []string{"This domain is for use in illustrative examples.", "Second paragraph."}, page.Paragraphs)
	require.Equal(t, []string{"/docs", "https://www.iana.org/domains/example"}, page.Links)
}

func TestScrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	s := NewScraper(server.Client())
	res, err := s.Scrape(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	require.Equal(t, "Example Domain", res.Data.Title)

	_, err = s.Scrape(context.Background(), server.URL+"/missing")
	require.True(t, errors.Is(err, ledger.ErrUpstreamUnavailable))

	_, err = s.Scrape(context.Background(), "ftp://example.com")
	require.True(t, errors.Is(err, ledger.ErrInvalidInput))
}

func TestCatalogue(t *testing.T) {
	all := Builtin(nil)
	require.Len(t, all, 6)

	subset, err := all.Select(NameSentiment, NameSummarize)
	require.NoError(t, err)
	require.Equal(t, []string{NameSentiment, NameSummarize}, []string{subset.List()[0].Name, subset.List()[1].Name})

	_, err = all.Select("juggle")
	require.True(t, errors.Is(err, ledger.ErrInvalidInput))

	out, err := subset.Run(context.Background(), NameSentiment, Request{Text: "good"})
	require.NoError(t, err)
	require.Equal(t, "positive", out.(SentimentResult).Sentiment)

	_, err = subset.Run(context.Background(), NameScrape, Request{})
	require.True(t, errors.Is(err, ledger.ErrNotFound))
}
