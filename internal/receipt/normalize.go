package receipt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultMerchant = "Unknown Merchant"
	defaultFilename = "receipt.pdf"
	defaultItemName = "Unknown Item"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Normalizer maps backend JSON objects onto Receipt. The backend is not
// consistent about snake_case and camelCase, so every field is looked up
// under each of its known names in order.
type Normalizer struct {
	timeSource TimeSource
}

// NewNormalizer creates a Normalizer that defaults missing dates to time.Now
func NewNormalizer() *Normalizer {
	return &Normalizer{timeSource: &defaultTimeSource{}}
}

// NewNormalizerWithClock creates a Normalizer with a custom time source for testing
func NewNormalizerWithClock(timeSrc TimeSource) *Normalizer {
	return &Normalizer{timeSource: timeSrc}
}

// Normalize converts a decoded backend object into a Receipt. It never
// fails: absent or malformed fields fall back to defaults. fallbackID is
// used when the object carries no id of its own.
func (n *Normalizer) Normalize(raw map[string]any, fallbackID string) *Receipt {
	now := n.timeSource.Now().UTC().Format(time.RFC3339)

	id, ok := lookupString(raw, "id")
	if !ok {
		id = fallbackID
	}

	r := &Receipt{
		ID:           id,
		MerchantName: stringOr(raw, defaultMerchant, "merchant_name", "merchantName"),
		PurchaseDate: stringOr(raw, now, "purchase_date", "purchaseDate"),
		TotalAmount:  nonNegative(decimalOr(raw, "total_amount", "totalAmount")),
		Status:       normalizeStatus(raw),
		Filename:     stringOr(raw, defaultFilename, "filename", "fileName"),
		UploadDate:   stringOr(raw, now, "upload_date", "uploadDate"),
		Address:      stringOr(raw, "", "address", "merchant_address", "merchantAddress"),
		Phone:        stringOr(raw, "", "phone_number", "phoneNumber", "phone"),
		Email:        stringOr(raw, "", "email"),
		TaxAmount:    optionalDecimal(raw, "tax_amount", "taxAmount", "tax"),
		Subtotal:     optionalDecimal(raw, "subtotal", "sub_total", "subTotal"),
	}

	if v, ok := lookup(raw, "file_id", "fileId"); ok {
		r.FileID = ParseID(v)
	} else if fid, err := strconv.ParseInt(r.ID, 10, 64); err == nil && fid > 0 {
		r.FileID = fid
	}

	r.Items = normalizeItems(raw["items"], r.ID)
	return r
}

func normalizeItems(v any, receiptID string) []ReceiptItem {
	list, ok := v.([]any)
	if !ok {
		return []ReceiptItem{}
	}

	items := make([]ReceiptItem, 0, len(list))
	for i, entry := range list {
		raw, ok := entry.(map[string]any)
		if !ok {
			raw = map[string]any{}
		}
		id, ok := lookupString(raw, "id")
		if !ok {
			id = fmt.Sprintf("%s-item-%d", receiptID, i+1)
		}

		qty := 1
		if q, ok := lookup(raw, "quantity", "qty"); ok {
			qty = toQuantity(q)
		}

		items = append(items, ReceiptItem{
			ID:       id,
			Name:     stringOr(raw, defaultItemName, "name", "description"),
			Quantity: qty,
			Price:    decimalOr(raw, "price", "unit_price", "unitPrice"),
			Total:    decimalOr(raw, "total", "line_total", "lineTotal"),
		})
	}
	return items
}

func normalizeStatus(raw map[string]any) Status {
	s, _ := lookupString(raw, "status")
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusProcessing:
		return StatusProcessing
	case StatusFailed:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// lookup returns the value of the first key that is present. JSON null and
// empty strings count as absent.
func lookup(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(raw map[string]any, keys ...string) (string, bool) {
	v, ok := lookup(raw, keys...)
	if !ok {
		return "", false
	}
	return toString(v), true
}

func stringOr(raw map[string]any, def string, keys ...string) string {
	if s, ok := lookupString(raw, keys...); ok {
		return s
	}
	return def
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// maxScale bounds the exponent of a parsed number. Rescaling a decimal
// costs time and memory proportional to its exponent.
const maxScale = 32

var (
	maxInt64    = decimal.NewFromInt(math.MaxInt64)
	maxQuantity = decimal.NewFromInt(math.MaxInt32)
)

// ParseAmount parses a JSON number or numeric string. Anything else, or a
// number whose exponent is beyond ±32, is zero.
func ParseAmount(v any) decimal.Decimal {
	var d decimal.Decimal
	switch t := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero
		}
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	if exp := d.Exponent(); exp > maxScale || exp < -maxScale {
		return decimal.Zero
	}
	return d
}

// ParseID parses a positive integer identifier. Values that are not
// positive or do not fit in an int64 are zero.
func ParseID(v any) int64 {
	d := ParseAmount(v)
	if !d.IsPositive() || d.GreaterThan(maxInt64) {
		return 0
	}
	return d.IntPart()
}

func decimalOr(raw map[string]any, keys ...string) decimal.Decimal {
	v, ok := lookup(raw, keys...)
	if !ok {
		return decimal.Zero
	}
	return ParseAmount(v)
}

func optionalDecimal(raw map[string]any, keys ...string) *decimal.Decimal {
	v, ok := lookup(raw, keys...)
	if !ok {
		return nil
	}
	d := ParseAmount(v)
	return &d
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// toQuantity truncates to a whole, non-negative count. Unparseable or
// out-of-range input is zero.
func toQuantity(v any) int {
	d := ParseAmount(v)
	if d.IsNegative() || d.GreaterThan(maxQuantity) {
		return 0
	}
	return int(d.IntPart())
}
