package usecase

import (
	"math"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// BudgetMode selects how the request document budget is split across domains.
type BudgetMode string

const (
	// BudgetModeBounded caps each domain individually.
	BudgetModeBounded BudgetMode = "bounded"
	// BudgetModeDynamic splits a fixed global budget by domain priority.
	BudgetModeDynamic BudgetMode = "dynamic"
)

// BudgetConfig tunes the Document Budget Calculator.
type BudgetConfig struct {
	Mode         BudgetMode
	PerDomainCap int
	GlobalMax    int
	PrimaryRatio float64
}

func (c BudgetConfig) normalize() BudgetConfig {
	out := c
	if out.Mode != BudgetModeBounded {
		out.Mode = BudgetModeDynamic
	}
	if out.PerDomainCap <= 0 {
		out.PerDomainCap = 5
	}
	if out.GlobalMax <= 0 {
		out.GlobalMax = 12
	}
	if out.PrimaryRatio <= 0 || out.PrimaryRatio >= 1 {
		out.PrimaryRatio = 0.6
	}
	return out
}

// BudgetCalculator allocates per-domain result counts. Domain order is order
// of first appearance; the first domain is always primary.
type BudgetCalculator struct {
	cfg BudgetConfig
}

func NewBudgetCalculator(cfg BudgetConfig) *BudgetCalculator {
	return &BudgetCalculator{cfg: cfg.normalize()}
}

// Allocate computes one budget per domain from the recommended K of the
// query characteristics.
func (b *BudgetCalculator) Allocate(chars domain.QueryCharacteristics, domains []string) []domain.DomainBudget {
	if len(domains) == 0 {
		return nil
	}
	recommended := chars.TopK
	if recommended <= 0 {
		recommended = 5
	}

	if b.cfg.Mode == BudgetModeBounded {
		return b.allocateBounded(recommended, domains)
	}
	return b.allocateDynamic(recommended, domains)
}

func (b *BudgetCalculator) allocateBounded(recommended int, domains []string) []domain.DomainBudget {
	k := recommended
	if k > b.cfg.PerDomainCap {
		k = b.cfg.PerDomainCap
	}

	n := len(domains)
	if n >= 2 && k*n > b.cfg.GlobalMax {
		k = b.cfg.GlobalMax / n
		if k < 2 {
			k = 2
		}
	}

	out := make([]domain.DomainBudget, 0, n)
	for i, name := range domains {
		out = append(out, domain.DomainBudget{
			Domain:   name,
			K:        k,
			Primary:  i == 0,
			Priority: i,
		})
	}
	return out
}

func (b *BudgetCalculator) allocateDynamic(recommended int, domains []string) []domain.DomainBudget {
	n := len(domains)
	globalMax := b.cfg.GlobalMax

	switch {
	case n == 1:
		k := recommended
		if k > globalMax {
			k = globalMax
		}
		return []domain.DomainBudget{{Domain: domains[0], K: k, Primary: true, Priority: 0}}

	case n == 2:
		primaryK := int(math.Ceil(float64(globalMax) * b.cfg.PrimaryRatio))
		return []domain.DomainBudget{
			{Domain: domains[0], K: primaryK, Primary: true, Priority: 0},
			{Domain: domains[1], K: globalMax - primaryK, Primary: false, Priority: 1},
		}

	default:
		primaryK := int(math.Ceil(float64(globalMax) * 0.5))
		remaining := globalMax - primaryK
		share := remaining / (n - 1)
		if share < 1 {
			share = 1
		}
		out := make([]domain.DomainBudget, 0, n)
		out = append(out, domain.DomainBudget{Domain: domains[0], K: primaryK, Primary: true, Priority: 0})
		for i := 1; i < n; i++ {
			out = append(out, domain.DomainBudget{Domain: domains[i], K: share, Primary: false, Priority: i})
		}
		return out
	}
}
