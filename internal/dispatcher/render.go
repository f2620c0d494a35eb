package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"kite-strangle-bot/internal/types"
)

var ist = time.FixedZone("IST", 19800)

// RenderOutcome summarizes a trade for a human. The first word is always
// the outcome status.
func RenderOutcome(o *types.TradeOutcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s strangle %s", o.Status(), shortID(o.TradeID))
	if o.Quote != nil {
		fmt.Fprintf(&b, " | spot %s %s", o.Quote.Instrument, o.Quote.Price.String())
	}
	if !o.Expiry.IsZero() {
		fmt.Fprintf(&b, " | expiry %s", o.Expiry.Format("02 Jan"))
	}

	for _, leg := range o.Legs {
		if line := renderLeg(leg); line != "" {
			b.WriteString("\n")
			b.WriteString(line)
		}
	}

	if o.Err != nil {
		fmt.Fprintf(&b, "\nError: %v", o.Err)
	}
	if len(o.Warnings) > 0 {
		b.WriteString("\nWarnings:")
		for _, w := range o.Warnings {
			fmt.Fprintf(&b, "\n- %v", w)
		}
	}
	return b.String()
}

func renderLeg(l *types.LegOutcome) string {
	if l.Contract == nil {
		return ""
	}
	sym := l.Contract.Tradingsymbol

	switch {
	case l.Entry == nil:
		return fmt.Sprintf("%s %s: not sold", l.OptionType, sym)
	case !l.Live:
		return fmt.Sprintf("%s %s: entry %s did not fill", l.OptionType, sym, l.Entry.OrderID)
	}

	line := fmt.Sprintf("%s %s: sold @ %s", l.OptionType, sym, l.ExecutedPrice.String())
	if !l.FillConfirmed {
		line += " (unconfirmed)"
	}
	if l.Stop == nil {
		return line + ", NO STOP"
	}
	return line + fmt.Sprintf(", SL %s/%s (%s)", l.StopTrigger.String(), l.StopLimit.String(), l.Stop.OrderID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
