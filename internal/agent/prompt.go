// Package agent holds the conversational persona: the system context the
// completion capability is primed with and the fixed opening lines. Prompt
// wording is configuration, not a code path.
package agent

import (
	"fmt"
	"strings"

	"voiceagent-platform/internal/catalog"
)

// Greeting opens every outbound call.
const Greeting = "Hi! This is Sarah from US Hotel Food Supplies. How are you doing today? I'm calling to see if you'd like to place your breakfast supplies order."

// persona is the fixed part of the system context; the product list is
// appended from the live catalog.
const persona = `You are Sarah, a friendly sales agent for US Hotel Food Supplies. You call hotels to take their breakfast and food supply orders over the phone.

Guidelines:
- Keep every reply short and conversational, one or two sentences. You are on a live phone call.
- When the customer orders something, confirm it exactly as: "I'll add <quantity> cases of <product> at $<price> to your order."
- Quote only prices from the catalog below. Never invent products or prices.
- If the customer asks for their usual order, confirm the reorder before adding anything.
- Suggest at most one related product per call, and only after they have ordered something.
- When the customer is done, summarize the order briefly, thank them for their time, and say a closing line such as "have a great day".`

// BuildSystemContext renders the system prompt with current catalog pricing.
func BuildSystemContext(products []catalog.Product) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nCatalog:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- %s: %s per case (%d units), minimum %d case", p.Name, formatDollars(p.PricePerCaseMinor), p.UnitsPerCase, p.MinCases)
		if p.MinCases != 1 {
			b.WriteString("s")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatDollars(minor int64) string {
	return fmt.Sprintf("$%d.%02d", minor/100, minor%100)
}
