package explorer

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// NotAvailable is rendered for absent or zero timestamps.
	NotAvailable = "N/A"

	DefaultTimeLayout = "2006-01-02 15:04:05"

	truncateKeep = 4
	ellipsis     = "..."

	// minerTagMin is the shortest printable run treated as text.
	minerTagMin = 4
	// minerTagPrefix allows for height push bytes that happen to be printable.
	minerTagPrefix = 4
	minerTagMax    = 32
)

// Formatter renders timestamps with a fixed layout and zone, standing in for
// the browser locale.
type Formatter struct {
	Layout   string
	Location *time.Location
}

// NewFormatter returns a formatter; empty layout and nil location fall back
// to DefaultTimeLayout and UTC.
func NewFormatter(layout string, loc *time.Location) Formatter {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{Layout: layout, Location: loc}
}

// FormatTimestamp renders Unix seconds, or NotAvailable for zero/negative input.
func (f Formatter) FormatTimestamp(epoch int64) string {
	if epoch <= 0 {
		return NotAvailable
	}
	layout, loc := f.Layout, f.Location
	if layout == "" {
		layout = DefaultTimeLayout
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(epoch, 0).In(loc).Format(layout)
}

// SumAmounts adds BTC amounts as decimals so 0.1+0.2 is exactly 0.3.
// An empty slice sums to zero.
func SumAmounts(amounts []float64) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total
}

// Truncate shortens a hash or address to its first and last four characters
// for compact layouts. Short values are returned unchanged.
func Truncate(id string) string {
	if len(id) <= 2*truncateKeep+len(ellipsis) {
		return id
	}
	return id[:truncateKeep] + ellipsis + id[len(id)-truncateKeep:]
}

// FormatBTC renders an amount with the usual eight decimal places.
func FormatBTC(amount decimal.Decimal) string {
	return amount.StringFixed(8) + " BTC"
}

func unixTime(epoch int64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}

// MinerTag extracts the pool name from a hex coinbase scriptSig: the first
// /slash-delimited/ tag near the start of a printable run, or else the
// longest printable run. Returns "" when there is no text.
func MinerTag(coinbase string) string {
	raw, err := hex.DecodeString(coinbase)
	if err != nil {
		return ""
	}

	var runs []string
	start := -1
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && raw[i] >= 0x20 && raw[i] <= 0x7e {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minerTagMin {
			runs = append(runs, string(raw[start:i]))
		}
		start = -1
	}

	longest := ""
	for _, run := range runs {
		if slash := strings.IndexByte(run, '/'); slash >= 0 && slash <= minerTagPrefix {
			rest := run[slash+1:]
			if end := strings.IndexByte(rest, '/'); end > 0 {
				return clip(strings.TrimSpace(rest[:end]))
			}
		}
		if len(run) > len(longest) {
			longest = run
		}
	}
	return clip(strings.TrimSpace(longest))
}

func clip(s string) string {
	if len(s) > minerTagMax {
		return s[:minerTagMax]
	}
	return s
}
