package decoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ugcFull  = regexp.MustCompile(`^([A-Z]{2}[CZ])(\d{3})(?:>(\d{3}))?$`)
	ugcShort = regexp.MustCompile(`^(\d{3})(?:>(\d{3}))?$`)
	ugcPurge = regexp.MustCompile(`^\d{6}$`)
)

// ExpandUGC expands a UGC block such as "NEC033-035>037-043-080000-" into
// individual codes and returns the trailing ddhhmm purge stamp.
func ExpandUGC(block string) ([]string, string, error) {
	block = strings.Join(strings.Fields(block), "")
	if !strings.HasSuffix(block, "-") {
		return nil, "", fmt.Errorf("%w: %q lacks the trailing dash", ErrMalformedUGC, block)
	}
	tokens := strings.Split(strings.TrimSuffix(block, "-"), "-")
	if len(tokens) < 2 || !ugcPurge.MatchString(tokens[len(tokens)-1]) {
		return nil, "", fmt.Errorf("%w: %q has no purge stamp", ErrMalformedUGC, block)
	}
	purge := tokens[len(tokens)-1]

	var codes []string
	seen := map[string]bool{}
	prefix := ""
	for _, tok := range tokens[:len(tokens)-1] {
		var lo, hi string
		if m := ugcFull.FindStringSubmatch(tok); m != nil {
			prefix, lo, hi = m[1], m[2], m[3]
		} else if m := ugcShort.FindStringSubmatch(tok); m != nil && prefix != "" {
			lo, hi = m[1], m[2]
		} else {
			return nil, "", fmt.Errorf("%w: bad code %q in %q", ErrMalformedUGC, tok, block)
		}
		from, _ := strconv.Atoi(lo)
		to := from
		if hi != "" {
			to, _ = strconv.Atoi(hi)
		}
		if to < from {
			return nil, "", fmt.Errorf("%w: descending range %q in %q", ErrMalformedUGC, tok, block)
		}
		for n := from; n <= to; n++ {
			code := fmt.Sprintf("%s%03d", prefix, n)
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	return codes, purge, nil
}
