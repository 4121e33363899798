package order

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor mines confirmed-order sentences out of agent replies.
//
// This is an intentionally heuristic pattern match, not a grammar: it scans
// for the confirmation shape the agent is prompted to use
// ("I'll add 2 cases of Banana Muffins at $25 per case") and may both over-
// and under-match on free-form phrasing. Known limitations:
// - only the "<qty> cases of <product> at $<price>" shape is recognized;
// - a reply quoting a previous confirmation is re-counted;
// - product names are taken verbatim between "of" and "at".

var (
	lineItemPattern = regexp.MustCompile(`(?i)\b(\d+)\s+cases?\s+of\s+(.+?)\s+at\s+\$(\d+(?:\.\d{1,2})?)`)

	// Best-effort name capture from customer speech.
	customerNamePattern = regexp.MustCompile(`(?i)\bthis is\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	hotelNamePattern    = regexp.MustCompile(`(?i)\b(?:from|at|of)\s+(?:the\s+)?([A-Z][A-Za-z'&]*(?:\s+[A-Z][A-Za-z'&]*)*\s+(?:Hotel|Inn|Suites|Resort|Lodge))`)
)

// ScanReply applies the confirmed-order pattern to an assistant reply,
// appending any matched line items to the state and recomputing the total.
// Returns the number of items added.
func ScanReply(s *State, reply string) int {
	matches := lineItemPattern.FindAllStringSubmatch(reply, -1)
	for _, m := range matches {
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty <= 0 {
			continue
		}
		price, ok := parsePriceMinor(m[3])
		if !ok || price <= 0 {
			continue
		}
		s.AddItem(LineItem{
			Product:           strings.TrimSpace(m[2]),
			Quantity:          qty,
			PricePerCaseMinor: price,
		})
	}
	return len(matches)
}

// ScanUserSpeech captures customer and hotel names when the caller
// introduces themselves. First capture wins; later mentions never overwrite.
func ScanUserSpeech(s *State, speech string) {
	if s.CustomerName == "" {
		if m := customerNamePattern.FindStringSubmatch(speech); m != nil {
			s.CustomerName = m[1]
		}
	}
	if s.HotelName == "" {
		if m := hotelNamePattern.FindStringSubmatch(speech); m != nil {
			s.HotelName = m[1]
		}
	}
}

// parsePriceMinor converts a "25" or "27.50" price string to cents.
func parsePriceMinor(s string) (int64, bool) {
	dollars, cents := s, "0"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		dollars, cents = s[:i], s[i+1:]
	}
	d, err := strconv.ParseInt(dollars, 10, 64)
	if err != nil {
		return 0, false
	}
	if len(cents) == 1 {
		cents += "0"
	}
	c, err := strconv.ParseInt(cents, 10, 64)
	if err != nil {
		return 0, false
	}
	return d*100 + c, true
}
