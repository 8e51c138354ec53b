package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mkravets/consultrag/internal/core/domain"
)

type domainsFile struct {
	Domains []domain.DomainConfig `yaml:"domains"`
}

// LoadDomains reads the domain registry from a YAML file. A missing file
// falls back to the built-in default registry.
func LoadDomains(path string) (*domain.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewRegistry(DefaultDomains()), nil
		}
		return nil, fmt.Errorf("read domains file: %w", err)
	}

	var parsed domainsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse domains file: %w", err)
	}
	if len(parsed.Domains) == 0 {
		return nil, fmt.Errorf("domains file %s declares no domains", path)
	}
	for i, d := range parsed.Domains {
		if d.Name == "" {
			return nil, fmt.Errorf("domains file %s: domain %d has no name", path, i)
		}
	}
	return domain.NewRegistry(parsed.Domains), nil
}

// DefaultDomains is the built-in consultation domain registry used when no
// domains file is configured.
func DefaultDomains() []domain.DomainConfig {
	return []domain.DomainConfig{
		{
			Name:       "funding",
			Label:      "Government Funding",
			Collection: "funding_docs",
			Keywords: []string{
				"funding", "grant", "subsidy", "support program", "voucher",
				"startup package", "government support",
			},
			RepresentativeQueries: []string{
				"What government grants are available for early-stage startups?",
				"How do I apply for an R&D subsidy?",
				"Which support programs cover prototype development costs?",
			},
			Adjacent: []string{"finance"},
			SuggestedActions: []string{
				"Check the current application window for the matched program",
				"Prepare a business plan summary for the grant application",
			},
		},
		{
			Name:       "finance",
			Label:      "Finance & Investment",
			Collection: "finance_docs",
			Keywords: []string{
				"investment", "loan", "interest rate", "venture capital",
				"valuation", "equity", "cash flow", "bank",
			},
			RepresentativeQueries: []string{
				"What loan products suit a company with irregular revenue?",
				"How is a convertible note different from equity investment?",
				"What documents do banks require for a startup credit line?",
			},
			Adjacent: []string{"funding", "tax"},
			SuggestedActions: []string{
				"Compare policy loan rates against commercial alternatives",
			},
		},
		{
			Name:       "labor",
			Label:      "Labor & Employment",
			Collection: "labor_docs",
			Keywords: []string{
				"employee", "employment contract", "dismissal", "severance",
				"working hours", "overtime", "minimum wage", "hiring",
			},
			RepresentativeQueries: []string{
				"What notice period applies before dismissing an employee?",
				"How is severance pay calculated for part-time workers?",
				"What are the legal limits on weekly working hours?",
			},
			Adjacent: []string{"legal"},
			SuggestedActions: []string{
				"Review your standard employment contract for compliance",
			},
		},
		{
			Name:       "legal",
			Label:      "Legal & Compliance",
			Collection: "legal_docs",
			Keywords: []string{
				"contract", "liability", "article", "statute", "regulation",
				"compliance", "intellectual property", "trademark", "enforcement decree",
			},
			RepresentativeQueries: []string{
				"What clauses must a service agreement include?",
				"What is the procedure under the commercial act for a share transfer?",
				"How do I register a trademark for my product name?",
			},
			Adjacent: []string{"labor"},
			SuggestedActions: []string{
				"Consult the cited statute text before acting",
			},
		},
		{
			Name:       "tax",
			Label:      "Tax",
			Collection: "tax_docs",
			Keywords: []string{
				"tax", "vat", "deduction", "corporate tax", "withholding",
				"filing deadline", "tax credit",
			},
			RepresentativeQueries: []string{
				"Which startup tax credits apply in the first year?",
				"When is the corporate tax filing deadline?",
				"How does VAT apply to exported software services?",
			},
			Adjacent: []string{"finance"},
			SuggestedActions: []string{
				"Confirm the filing deadline for your fiscal year",
			},
		},
	}
}
