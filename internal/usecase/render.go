package usecase

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"tickwatch/internal/domain/models"
)

// RenderMessage formats a signal as Telegram HTML.
func RenderMessage(sig models.Signal) string {
	if sig.Type == models.SignalAlert {
		return renderAlert(sig)
	}
	return renderBreakout(sig)
}

func renderBreakout(sig models.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 <b>%s Alert</b>\n", html.EscapeString(sig.Symbol))
	b.WriteString("━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "Price: ₹%s\n", money(sig.Price))
	fmt.Fprintf(&b, "Volume: %s\n", decimal.NewFromFloat(sig.Volume).Round(0).String())
	fmt.Fprintf(&b, "Signal: %s\n", html.EscapeString(sig.Reason))
	fmt.Fprintf(&b, "Time: %s UTC\n\n", sig.Timestamp.UTC().Format("15:04"))
	b.WriteString("<i>Check chart for confirmation.</i>")
	return b.String()
}

func renderAlert(sig models.Signal) string {
	direction := sig.Operator.Direction()
	indicator := string(sig.Indicator)
	threshold := decimal.NewFromFloat(sig.Threshold).String()

	var b strings.Builder
	b.WriteString("🔔 <b>YOUR ALERT TRIGGERED</b>\n\n")
	fmt.Fprintf(&b, "%s crossed %s %s\n\n", html.EscapeString(sig.Symbol), direction, threshold)
	b.WriteString("📊 <b>Current Data:</b>\n")
	fmt.Fprintf(&b, "• Value: %s\n", money(sig.Price))
	fmt.Fprintf(&b, "• Indicator: %s\n\n", strings.ToUpper(indicator))
	fmt.Fprintf(&b, "This matches your criteria of '%s %s %s'.\n\n", indicator, direction, threshold)
	b.WriteString("⚠️ This is an automated alert based on <b>YOUR</b> settings.\n")
	b.WriteString("Not investment advice. You decide your next action.")
	return b.String()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
