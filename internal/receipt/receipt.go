package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the processing state reported by the backend
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StatusAll is the filter sentinel meaning "any status"
const StatusAll = "all"

// Receipt is the canonical record every view renders, whatever shape the backend sent
type Receipt struct {
	ID           string           `json:"id"`
	MerchantName string           `json:"merchant_name"`
	PurchaseDate string           `json:"purchase_date"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	Status       Status           `json:"status"`
	Filename     string           `json:"filename"`
	UploadDate   string           `json:"upload_date"`
	FileID       int64            `json:"file_id,omitempty"` // backend file the receipt was extracted from
	Items        []ReceiptItem    `json:"items"`
	Address      string           `json:"address,omitempty"`
	Phone        string           `json:"phone,omitempty"`
	Email        string           `json:"email,omitempty"`
	TaxAmount    *decimal.Decimal `json:"tax_amount,omitempty"`
	Subtotal     *decimal.Decimal `json:"subtotal,omitempty"`
}

// ReceiptItem is one line of a receipt
type ReceiptItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
}

// Reprocessable reports whether a reprocess may be started for the receipt
func (r *Receipt) Reprocessable() bool {
	return r.Status != StatusProcessing
}

// UploadedAt parses UploadDate, returning the zero time when it is not a recognized date
func (r *Receipt) UploadedAt() time.Time {
	return parseDate(r.UploadDate)
}

// PurchasedAt parses PurchaseDate, returning the zero time when it is not a recognized date
func (r *Receipt) PurchasedAt() time.Time {
	return parseDate(r.PurchaseDate)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
