package negotiation

import (
	"regexp"
	"strconv"
)

// offerPattern matches an optional dollar sign followed by digits and an
// optional one-or-two digit fraction. Thousands separators and negative
// numbers are deliberately not recognized.
var offerPattern = regexp.MustCompile(`\$?(\d+(?:\.\d{1,2})?)`)

// ParseOffer extracts a price figure from free-form shopper text. Only the
// first numeric substring counts: "between $200 and $250" parses as 200.
// The boolean is false when the text contains no number at all.
func ParseOffer(text string) (float64, bool) {
	m := offerPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
