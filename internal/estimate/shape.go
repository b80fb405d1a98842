package estimate

import (
	"math"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// knownRanks are approximate ranks for domains the shape heuristic would
// badly misjudge.
var knownRanks = map[string]int{
	"google.com":        1,
	"youtube.com":       2,
	"facebook.com":      3,
	"instagram.com":     4,
	"twitter.com":       5,
	"x.com":             5,
	"amazon.com":        10,
	"linkedin.com":      15,
	"reddit.com":        20,
	"netflix.com":       20,
	"github.com":        50,
	"stackoverflow.com": 100,
	"medium.com":        200,
	"vercel.app":        5000,
}

// tldBaseRanks orders top-level domains by density of popular sites.
var tldBaseRanks = map[string]float64{
	"com": 200000,
	"org": 300000,
	"ai":  300000,
	"net": 350000,
	"io":  400000,
	"app": 400000,
	"dev": 450000,
}

const unknownTLDBaseRank = 500000

// RankFromShape derives a stable pseudo-rank from the domain string alone.
// The same domain always yields the same rank.
func (Model) RankFromShape(domain string) int {
	domain = strings.ToLower(domain)
	for known, rank := range knownRanks {
		if domain == known || strings.HasSuffix(domain, "."+known) {
			return rank
		}
	}

	base, ok := tldBaseRanks[topLevel(domain)]
	if !ok {
		base = unknownTLDBaseRank
	}

	switch n := len(registrableLabel(domain)); {
	case n <= 4:
		base *= 0.5
	case n <= 8:
		base *= 0.8
	default:
		base *= 1.2
	}

	rank := int(math.Round(base * (0.8 + float64(charSum(domain)%100)/250)))
	return max(rank, 1)
}

// RankFromShape uses the default model.
func RankFromShape(domain string) int {
	return DefaultModel().RankFromShape(domain)
}

func topLevel(domain string) string {
	if idx := strings.LastIndex(domain, "."); idx >= 0 {
		return domain[idx+1:]
	}
	return domain
}

// registrableLabel returns the label directly left of the public suffix,
// e.g. "example" for "blog.example.co.uk".
func registrableLabel(domain string) string {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		etld1 = domain
	}
	if idx := strings.Index(etld1, "."); idx >= 0 {
		return etld1[:idx]
	}
	return etld1
}

func charSum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += int(s[i])
	}
	return sum
}
