package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"matchfeed.com/internal/matching"
)

// dumpBook prints buy levels then sell levels, both by ascending price.
// Within a row the highest priority order sits next to the price column.
func dumpBook(w io.Writer, b *matching.OrderBook, tick decimal.Decimal) {
	fmt.Fprintln(w, strings.Repeat("*", 80))
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintf(w, "| %s | %s | %s |\n", center("buy", 40), center("PRICE", 10), center("sell", 40))
	fmt.Fprintln(w, strings.Repeat("-", 100))

	bids := b.Side(matching.Buy)
	for i := len(bids) - 1; i >= 0; i-- {
		lv := bids[i]
		cells := make([]string, len(lv.Orders))
		for j, o := range lv.Orders {
			cells[len(cells)-1-j] = orderCell(o)
		}
		fmt.Fprintf(w, "| %40s | %s | %-40s |\n", strings.Join(cells, " "), center(priceString(lv.Price, tick), 10), "")
	}
	fmt.Fprintln(w)

	for _, lv := range b.Side(matching.Sell) {
		cells := make([]string, len(lv.Orders))
		for j, o := range lv.Orders {
			cells[j] = orderCell(o)
		}
		fmt.Fprintf(w, "| %40s | %s | %-40s |\n", "", center(priceString(lv.Price, tick), 10), strings.Join(cells, " "))
	}
}

func orderCell(o matching.Order) string { return fmt.Sprintf("%d(ID: %d)", o.Qty, o.ID) }

func priceString(ticks int64, tick decimal.Decimal) string {
	p := decimal.NewFromInt(ticks).Mul(tick)
	if exp := tick.Exponent(); exp < 0 {
		return p.StringFixed(-exp)
	}
	return p.String()
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}
