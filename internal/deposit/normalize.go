// Package deposit extracts a single "deposit this period" figure from the
// loosely structured payload returned by the platform lookup API. The upstream
// schema is not contractually fixed, so extraction runs as an ordered chain of
// rules where the first present, parseable value wins.
package deposit

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction-record codes identifying a genuine deposit entry. Other
// operation types (reversals, adjustments) are excluded from the fallback sum.
const (
	depositOptType  = 2112
	depositDealType = 2
)

// Extractor is one rule in the chain. It reports ok=false when its field is
// absent or unparseable, which hands control to the next rule.
type Extractor struct {
	Name    string
	Extract func(payload map[string]any) (decimal.Decimal, bool)
}

// Extractors returns the extraction chain in strict priority order.
func Extractors() []Extractor {
	return []Extractor{
		{Name: "totalDepositMonth1", Extract: field("totalDepositMonth1")},
		{Name: "depositSummary.totalDeposit", Extract: nested("depositSummary", "totalDeposit")},
		{Name: "totalDeposit", Extract: field("totalDeposit")},
		{Name: "depositAmount", Extract: field("depositAmount")},
		{Name: "userInfo.totalDepositMonth1", Extract: nested("userInfo", "totalDepositMonth1")},
		{Name: "userInfo.totalDeposit", Extract: nested("userInfo", "totalDeposit")},
		{Name: "records", Extract: sumRecords},
	}
}

// Normalize derives the deposit total from payload. It never fails: when no
// rule matches it returns zero with an empty source name so the caller can log
// the degraded case. The result is clamped to be non-negative.
func Normalize(payload map[string]any) (decimal.Decimal, string) {
	if payload == nil {
		return decimal.Zero, ""
	}
	for _, ex := range Extractors() {
		value, ok := ex.Extract(payload)
		if !ok {
			continue
		}
		if value.IsNegative() {
			value = decimal.Zero
		}
		return value, ex.Name
	}
	return decimal.Zero, ""
}

func field(key string) func(map[string]any) (decimal.Decimal, bool) {
	return func(payload map[string]any) (decimal.Decimal, bool) {
		raw, ok := payload[key]
		if !ok {
			return decimal.Zero, false
		}
		return ParseAmount(raw)
	}
}

func nested(outer, key string) func(map[string]any) (decimal.Decimal, bool) {
	return func(payload map[string]any) (decimal.Decimal, bool) {
		sub, ok := payload[outer].(map[string]any)
		if !ok {
			return decimal.Zero, false
		}
		raw, ok := sub[key]
		if !ok {
			return decimal.Zero, false
		}
		return ParseAmount(raw)
	}
}

// sumRecords totals changeBalance over rawData.data.records, keeping only
// entries whose codes mark them as genuine deposits. The rule matches whenever
// the records list exists, even when the resulting sum is zero.
func sumRecords(payload map[string]any) (decimal.Decimal, bool) {
	rawData, ok := payload["rawData"].(map[string]any)
	if !ok {
		return decimal.Zero, false
	}
	data, ok := rawData["data"].(map[string]any)
	if !ok {
		return decimal.Zero, false
	}
	records, ok := data["records"].([]any)
	if !ok {
		return decimal.Zero, false
	}

	sum := decimal.Zero
	for _, raw := range records {
		record, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if intValue(record["optType"]) != depositOptType || intValue(record["dealType"]) != depositDealType {
			continue
		}
		amount, ok := toDecimal(record["changeBalance"])
		if !ok {
			continue
		}
		sum = sum.Add(amount)
	}
	return sum, true
}

// ParseAmount coerces an arbitrary upstream value to a decimal. The upstream
// locale uses "." as a thousands separator ("24.032" means 24032), so dots are
// stripped before parsing.
func ParseAmount(raw any) (decimal.Decimal, bool) {
	str, ok := stringify(raw)
	if !ok {
		return decimal.Zero, false
	}
	str = strings.ReplaceAll(strings.TrimSpace(str), ".", "")
	if str == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(str)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

func stringify(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

// toDecimal parses without the thousands-separator treatment; transaction
// record balances arrive as plain numerics.
func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		value, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, false
		}
		return value, true
	default:
		return decimal.Zero, false
	}
}

func intValue(raw any) int {
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
