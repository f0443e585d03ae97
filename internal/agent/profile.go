package agent

import (
	"os"
	"sort"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
)

// Profile describes an agent process: what it advertises to the marketplace
// and which skills it serves.
type Profile struct {
	Role        string   `toml:"role"`
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Category    string   `toml:"category"`
	Price       string   `toml:"price"`
	Wallet      string   `toml:"wallet"`
	Endpoint    string   `toml:"endpoint"`
	Skills      []string `toml:"skills"`
	// Peers pins collaborator endpoints by category; unset categories are
	// discovered through the marketplace registry.
	Peers map[string]string `toml:"peers"`
}

var builtinProfiles = map[string]string{
	"researcher": `
role = "researcher"
name = "Web Researcher"
description = "Scrapes and extracts data from websites"
category = "research"
price = "0.02"
wallet = "0xAAA"
endpoint = "http://localhost:4001"
skills = ["scrape", "search"]
`,
	"analyzer": `
role = "analyzer"
name = "Data Analyzer"
description = "Analyzes text, extracts insights, sentiment analysis"
category = "analysis"
price = "0.03"
wallet = "0xBBB"
endpoint = "http://localhost:4002"
skills = ["sentiment", "extract-keywords", "analyze-structure"]
`,
	"summarizer": `
role = "summarizer"
name = "Content Summarizer"
description = "Summarizes long text, creates reports by calling other agents"
category = "summarization"
price = "0.05"
wallet = "0xCCC"
endpoint = "http://localhost:4003"
skills = ["summarize", "research-report"]
`,
}

// Roles lists the built-in profile names.
func Roles() []string {
	out := make([]string, 0, len(builtinProfiles))
	for role := range builtinProfiles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// BuiltinProfile returns the named built-in profile.
func BuiltinProfile(role string) (Profile, error) {
	doc, ok := builtinProfiles[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		return Profile{}, errorsmod.Wrapf(ledger.ErrInvalidInput, "unknown role %q (known: %s)", role, strings.Join(Roles(), ", "))
	}
	return ParseProfile([]byte(doc))
}

// LoadProfile reads a TOML profile from path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errorsmod.Wrapf(ledger.ErrInvalidInput, "read profile: %v", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a TOML profile.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, errorsmod.Wrapf(ledger.ErrInvalidInput, "decode profile: %v", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the profile would be accepted by the marketplace.
func (p Profile) Validate() error {
	if _, err := ledger.ParseCategory(p.Category); err != nil {
		return err
	}
	if _, err := ledger.ParseAmount(p.Price); err != nil {
		return errorsmod.Wrap(err, "profile price")
	}
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errorsmod.Wrap(ledger.ErrInvalidInput, "profile name required")
	case strings.TrimSpace(p.Wallet) == "":
		return errorsmod.Wrap(ledger.ErrInvalidInput, "profile wallet required")
	case strings.TrimSpace(p.Endpoint) == "":
		return errorsmod.Wrap(ledger.ErrInvalidInput, "profile endpoint required")
	case len(p.Skills) == 0:
		return errorsmod.Wrap(ledger.ErrInvalidInput, "profile must list at least one skill")
	}
	return nil
}

// RegisterRequest renders the marketplace registration for this profile.
func (p Profile) RegisterRequest() ledger.RegisterRequest {
	return ledger.RegisterRequest{
		Name:        p.Name,
		Description: p.Description,
		Endpoint:    p.Endpoint,
		Wallet:      p.Wallet,
		Price:       p.Price,
		Category:    p.Category,
	}
}

// Encode renders the profile as TOML.
func (p Profile) Encode() ([]byte, error) {
	return toml.Marshal(p)
}
