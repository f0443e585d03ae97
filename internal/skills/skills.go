// Package skills implements the services agents sell on the marketplace.
// Text skills are pure functions; scrape fetches a remote page.
package skills

import (
	"context"
	"sort"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// Skill names.
const (
	NameScrape           = "scrape"
	NameSearch           = "search"
	NameSentiment        = "sentiment"
	NameExtractKeywords  = "extract-keywords"
	NameAnalyzeStructure = "analyze-structure"
	NameSummarize        = "summarize"
)

// Request is the union of skill inputs. Each skill reads the fields it needs.
type Request struct {
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	Query     string `json:"query,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// Func executes a skill.
type Func func(ctx context.Context, req Request) (any, error)

// Skill is a priced, named capability.
type Skill struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       ledger.Amount `json:"price"`
	Run         Func          `json:"-"`
}

// Catalogue indexes skills by name.
type Catalogue map[string]Skill

// Builtin returns every built-in skill. scraper may be nil, in which case a
// default Scraper is used.
func Builtin(scraper *Scraper) Catalogue {
	if scraper == nil {
		scraper = NewScraper(nil)
	}
	return Catalogue{
		NameScrape: {
			Name: NameScrape, Description: "Fetch a web page and extract title, headings, paragraphs and links",
			Price: ledger.MustAmount("0.02"),
			Run: func(ctx context.Context, req Request) (any, error) {
				return scraper.Scrape(ctx, req.URL)
			},
		},
		NameSearch: {
			Name: NameSearch, Description: "Search for reference material",
			Price: ledger.MustAmount("0.03"),
			Run: func(_ context.Context, req Request) (any, error) {
				return Search(req.Query)
			},
		},
		NameSentiment: {
			Name: NameSentiment, Description: "Word-list sentiment analysis",
			Price: ledger.MustAmount("0.03"),
			Run: func(_ context.Context, req Request) (any, error) {
				return Sentiment(req.Text)
			},
		},
		NameExtractKeywords: {
			Name: NameExtractKeywords, Description: "Top keywords by frequency",
			Price: ledger.MustAmount("0.02"),
			Run: func(_ context.Context, req Request) (any, error) {
				return ExtractKeywords(req.Text)
			},
		},
		NameAnalyzeStructure: {
			Name: NameAnalyzeStructure, Description: "Character, word, sentence and paragraph counts",
			Price: ledger.MustAmount("0.02"),
			Run: func(_ context.Context, req Request) (any, error) {
				return AnalyzeStructure(req.Text)
			},
		},
		NameSummarize: {
			Name: NameSummarize, Description: "Extractive summary of the leading sentences",
			Price: ledger.MustAmount("0.05"),
			Run: func(_ context.Context, req Request) (any, error) {
				return Summarize(req.Text, req.MaxLength)
			},
		},
	}
}

// Select returns the named subset of c, failing on unknown names.
func (c Catalogue) Select(names ...string) (Catalogue, error) {
	out := make(Catalogue, len(names))
	for _, name := range names {
		skill, ok := c[strings.TrimSpace(name)]
		if !ok {
			return nil, errorsmod.Wrapf(ledger.ErrInvalidInput, "unknown skill %q", name)
		}
		out[skill.Name] = skill
	}
	return out, nil
}

// Add registers or replaces a skill.
func (c Catalogue) Add(skill Skill) {
	c[skill.Name] = skill
}

// List returns skills sorted by name.
func (c Catalogue) List() []Skill {
	out := make([]Skill, 0, len(c))
	for _, skill := range c {
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run executes the named skill.
func (c Catalogue) Run(ctx context.Context, name string, req Request) (any, error) {
	skill, ok := c[name]
	if !ok {
		return nil, errorsmod.Wrapf(ledger.ErrNotFound, "skill %s", name)
	}
	return skill.Run(ctx, req)
}
