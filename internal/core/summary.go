package core

// CategoryBreakdown is the summed amount of one category.
type CategoryBreakdown struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// MonthlySpending is the summed amount of one calendar month, labelled "Jan 2006".
type MonthlySpending struct {
	Month  string `json:"month"`
	Amount Money  `json:"amount"`
}

// AnalyticsSummary is derived on every request and never persisted.
type AnalyticsSummary struct {
	CategoryBreakdown []CategoryBreakdown `json:"categoryBreakdown"`
	MonthlySpending   []MonthlySpending   `json:"monthlySpending"`
	TotalSpent        Money               `json:"totalSpent"`
	AverageSpent      float64             `json:"averageSpent"`
	TopCategories     []CategoryBreakdown `json:"topCategories"`
	Count             int                 `json:"count"`
}
