package receipt

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Filter returns the receipts whose merchant name or filename contains
// query (case-insensitive) and whose status equals status. An empty query
// matches everything, as does a status of "" or StatusAll. Input order is kept.
func Filter(all []*Receipt, query string, status string) []*Receipt {
	q := strings.ToLower(strings.TrimSpace(query))
	status = strings.ToLower(strings.TrimSpace(status))

	filtered := make([]*Receipt, 0, len(all))
	for _, r := range all {
		if q != "" &&
			!strings.Contains(strings.ToLower(r.MerchantName), q) &&
			!strings.Contains(strings.ToLower(r.Filename), q) {
			continue
		}
		if status != "" && status != StatusAll && string(r.Status) != status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// Recent returns at most n receipts, newest upload first. Receipts with
// equal upload dates keep their fetch order.
func Recent(all []*Receipt, n int) []*Receipt {
	sorted := make([]*Receipt, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UploadedAt().After(sorted[j].UploadedAt())
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Stats summarizes a set of receipts for the dashboard
type Stats struct {
	Total           int             `json:"total"`
	Completed       int             `json:"completed"`
	Processing      int             `json:"processing"`
	Failed          int             `json:"failed"`
	CompletedAmount decimal.Decimal `json:"completed_amount"` // sum of completed receipt totals
}

// Summarize counts receipts by status and sums the totals of completed ones
func Summarize(all []*Receipt) Stats {
	stats := Stats{Total: len(all), CompletedAmount: decimal.Zero}
	for _, r := range all {
		switch r.Status {
		case StatusCompleted:
			stats.Completed++
			stats.CompletedAmount = stats.CompletedAmount.Add(r.TotalAmount)
		case StatusProcessing:
			stats.Processing++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}
