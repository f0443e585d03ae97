package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/payment"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/skills"
)

// NameResearchReport is the composite skill offered by summarizers.
const NameResearchReport = "research-report"

// ResearchReportPrice is what the composite skill advertises.
var ResearchReportPrice = ledger.MustAmount("0.10")

// Report combines a scraped page with a sentiment reading.
type Report struct {
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Sentiment      string   `json:"sentiment"`
	SentimentScore string   `json:"sentimentScore"`
	KeyPoints      []string `json:"keyPoints"`
	TotalCost      string   `json:"totalCost"`
	AgentsCalled   []string `json:"agentsCalled"`
	Timestamp      string   `json:"timestamp"`
}

// ReportBuilder hires a research agent and an analysis agent, pays each of
// them, and assembles a Report.
type ReportBuilder struct {
	self     Profile
	registry Registry
	settler  payment.Settler
	http     *http.Client
	logger   *zap.Logger
}

// NewReportBuilder constructs a builder acting on behalf of self.
func NewReportBuilder(self Profile, registry Registry, settler payment.Settler, client *http.Client, logger *zap.Logger) *ReportBuilder {
	if client == nil {
		client = &http.Client{Timeout: skills.ScrapeTimeout + 5*time.Second}
	}
	return &ReportBuilder{self: self, registry: registry, settler: settler, http: client, logger: logger}
}

// Skill exposes the builder as a catalogue entry.
func (b *ReportBuilder) Skill() skills.Skill {
	return skills.Skill{
		Name:        NameResearchReport,
		Description: "Scrape a page through a researcher, score it through an analyzer and summarise",
		Price:       ResearchReportPrice,
		Run: func(ctx context.Context, req skills.Request) (any, error) {
			return b.Build(ctx, req.URL)
		},
	}
}

// Build produces a report for url.
func (b *ReportBuilder) Build(ctx context.Context, url string) (Report, error) {
	if strings.TrimSpace(url) == "" {
		return Report{}, errorsmod.Wrap(ledger.ErrInvalidInput, "url required")
	}
	researcher, err := b.peer(ctx, ledger.CategoryResearch)
	if err != nil {
		return Report{}, err
	}
	analyzer, err := b.peer(ctx, ledger.CategoryAnalysis)
	if err != nil {
		return Report{}, err
	}

	b.logger.Info("calling researcher", zap.String("agent", researcher.Name), zap.String("url", url))
	scraped, err := b.call(ctx, researcher, skills.NameScrape, skills.Request{URL: url})
	if err != nil {
		return Report{}, err
	}
	if err := b.pay(ctx, researcher, skills.NameScrape); err != nil {
		return Report{}, err
	}

	title := scraped.Get("data.title").String()
	headings := stringsOf(scraped.Get("data.headings"))
	paragraphs := stringsOf(scraped.Get("data.paragraphs"))
	text := strings.TrimSpace(strings.Join(append(append([]string{title}, headings...), paragraphs...), " "))
	if text == "" {
		text = url
	}

	b.logger.Info("calling analyzer", zap.String("agent", analyzer.Name))
	sentiment, err := b.call(ctx, analyzer, skills.NameSentiment, skills.Request{Text: text})
	if err != nil {
		return Report{}, err
	}
	if err := b.pay(ctx, analyzer, skills.NameSentiment); err != nil {
		return Report{}, err
	}

	ownPrice, err := ledger.ParseAmount(b.self.Price)
	if err != nil {
		ownPrice = ledger.ZeroAmount
	}
	keyPoints := headings
	if len(keyPoints) > 5 {
		keyPoints = keyPoints[:5]
	}
	return Report{
		URL:            url,
		Title:          title,
		Summary:        leadParagraph(paragraphs, 300),
		Sentiment:      sentiment.Get("sentiment").String(),
		SentimentScore: sentiment.Get("score").String(),
		KeyPoints:      keyPoints,
		TotalCost:      researcher.Price.Add(analyzer.Price).Add(ownPrice).Display(),
		AgentsCalled:   []string{researcher.Name, analyzer.Name},
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// peer picks a collaborator of the given category: the pinned endpoint when
// the profile names one, otherwise the first online agent in the registry.
func (b *ReportBuilder) peer(ctx context.Context, category ledger.Category) (ledger.Agent, error) {
	agents, err := b.registry.Agents(ctx)
	if err != nil {
		return ledger.Agent{}, err
	}
	pinned := strings.TrimRight(b.self.Peers[string(category)], "/")
	for _, a := range agents {
		if a.Category != category || a.ID == b.self.Wallet {
			continue
		}
		if pinned != "" {
			if strings.TrimRight(a.Endpoint, "/") == pinned {
				return a, nil
			}
			continue
		}
		if a.Status == ledger.AgentOnline {
			return a, nil
		}
	}
	return ledger.Agent{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "no %s agent available", category)
}

func (b *ReportBuilder) call(ctx context.Context, peer ledger.Agent, skill string, req skills.Request) (gjson.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, errorsmod.Wrap(ledger.ErrInvalidInput, err.Error())
	}
	endpoint := strings.TrimRight(peer.Endpoint, "/") + "/skills/" + skill
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, errorsmod.Wrap(ledger.ErrInvalidInput, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := b.http.Do(httpReq)
	if err != nil {
		return gjson.Result{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "%s %s: %v", peer.Name, skill, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "%s %s: %v", peer.Name, skill, err)
	}
	body := gjson.ParseBytes(raw)
	if resp.StatusCode != http.StatusOK || !body.Get("success").Bool() {
		reason := body.Get("error").String()
		if reason == "" {
			reason = resp.Status
		}
		return gjson.Result{}, errorsmod.Wrapf(ledger.ErrUpstreamUnavailable, "%s %s: %s", peer.Name, skill, reason)
	}
	return body.Get("result"), nil
}

func (b *ReportBuilder) pay(ctx context.Context, peer ledger.Agent, service string) error {
	receipt, err := b.settler.Settle(ctx, payment.Charge{
		From:    b.self.Wallet,
		To:      peer.Wallet,
		Amount:  peer.Price,
		Service: service,
	})
	if err != nil {
		return err
	}
	b.logger.Info("paid peer", zap.String("agent", peer.Name), zap.String("tx", receipt.TransactionID), zap.Stringer("amount", receipt.Amount))
	return nil
}

func stringsOf(r gjson.Result) []string {
	items := r.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}

func leadParagraph(paragraphs []string, limit int) string {
	if len(paragraphs) == 0 {
		return ""
	}
	lead := []rune(paragraphs[0])
	if len(lead) > limit {
		lead = lead[:limit]
	}
	return string(lead) + "..."
}
