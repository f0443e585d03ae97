package skills

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// ScrapeTimeout bounds a single page fetch.
const ScrapeTimeout = 10 * time.Second

const (
	maxHeadings   = 10
	maxParagraphs = 5
	maxLinks      = 20
	maxPageBytes  = 4 << 20
)

// Page is the extracted outline of an HTML document.
type Page struct {
	Title      string   `json:"title"`
	Headings   []string `json:"headings"`
	Paragraphs []string `json:"paragraphs"`
	Links      []string `json:"links"`
}

// ScrapeResult wraps a scraped Page.
type ScrapeResult struct {
	Data Page `json:"data"`
}

// Scraper fetches pages over HTTP.
type Scraper struct {
	client *http.Client
}

// NewScraper returns a Scraper using client, or a client with ScrapeTimeout.
func NewScraper(client *http.Client) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: ScrapeTimeout}
	}
	return &Scraper{client: client}
}

// Scrape fetches rawURL and extracts its outline.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (ScrapeResult, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ScrapeResult{}, errorsmod.Wrapf(ledger.ErrInvalidInput, "invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ScrapeResult{}, errorsmod.Wrap(ledger.ErrInvalidInput, err.Error())
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return ScrapeResult{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "fetch %s: %v", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ScrapeResult{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "fetch %s: %s", u, resp.Status)
	}
	page, err := ParsePage(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return ScrapeResult{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "parse %s: %v", u, err)
	}
	return ScrapeResult{Data: page}, nil
}

// ParsePage extracts the title, h1-h3 headings, paragraphs and link targets
// in document order.
func ParsePage(r io.Reader) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, err
	}
	page := Page{Headings: []string{}, Paragraphs: []string{}, Links: []string{}}
	titleSeen := false

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if !titleSeen {
					page.Title = textOf(n)
					titleSeen = true
				}
			case atom.H1, atom.H2, atom.H3:
				if len(page.Headings) < maxHeadings {
					page.Headings = append(page.Headings, textOf(n))
				}
			case atom.P:
				if len(page.Paragraphs) < maxParagraphs {
					page.Paragraphs = append(page.Paragraphs, textOf(n))
				}
			case atom.A:
				if href, ok := attr(n, "href"); ok && len(page.Links) < maxLinks {
					page.Links = append(page.Links, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return page, nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
