package domain

import "strings"

// DomainConfig describes one topic-scoped collection and its classification
// and retrieval configuration.
type DomainConfig struct {
	Name                  string   `yaml:"name"`
	Label                 string   `yaml:"label"`
	Collection            string   `yaml:"collection"`
	Keywords              []string `yaml:"keywords"`
	RepresentativeQueries []string `yaml:"representative_queries"`
	Adjacent              []string `yaml:"adjacent"`
	SuggestedActions      []string `yaml:"suggested_actions"`
}

// Registry is the read-only set of configured domains.
type Registry struct {
	domains []DomainConfig
	byName  map[string]DomainConfig
}

func NewRegistry(domains []DomainConfig) *Registry {
	byName := make(map[string]DomainConfig, len(domains))
	for _, d := range domains {
		byName[d.Name] = d
	}
	return &Registry{domains: domains, byName: byName}
}

// Domains returns the configured domains in declaration order.
func (r *Registry) Domains() []DomainConfig {
	return r.domains
}

// Get looks a domain up by name.
func (r *Registry) Get(name string) (DomainConfig, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Collection maps a domain name to its collection, falling back to the name
// itself for unknown domains.
func (r *Registry) Collection(name string) string {
	if d, ok := r.byName[name]; ok && d.Collection != "" {
		return d.Collection
	}
	return name
}

// AdjacentDomains returns the configured adjacency list for a domain.
func (r *Registry) AdjacentDomains(name string) []string {
	d, ok := r.byName[name]
	if !ok {
		return nil
	}
	return d.Adjacent
}

// KeywordCount counts how many configured keywords appear across all domains.
func (r *Registry) KeywordCount() int {
	total := 0
	for _, d := range r.domains {
		total += len(d.Keywords)
	}
	return total
}

// MatchKeywords returns the keywords of each domain found in the text,
// matching case-insensitively.
func (r *Registry) MatchKeywords(text string) map[string][]string {
	lowered := strings.ToLower(text)
	out := make(map[string][]string)
	for _, d := range r.domains {
		for _, kw := range d.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(kw)) {
				out[d.Name] = append(out[d.Name], kw)
			}
		}
	}
	return out
}
