package domain

// DomainBudget is one domain's allocated share of the request document budget.
type DomainBudget struct {
	Domain   string `json:"domain"`
	K        int    `json:"k"`
	Primary  bool   `json:"primary"`
	Priority int    `json:"priority"`
}

// TotalK sums the allocated result counts across all budgets.
func TotalK(budgets []DomainBudget) int {
	total := 0
	for _, b := range budgets {
		total += b.K
	}
	return total
}
