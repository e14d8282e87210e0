package preprocess

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/tweets"
)

// ReplaceNewlines replaces every newline in tweet text with a space.
func ReplaceNewlines(ts []tweets.Tweet) []tweets.Tweet {
	out := make([]tweets.Tweet, len(ts))
	for i, tw := range ts {
		tw.Text = strings.ReplaceAll(tw.Text, "\n", " ")
		out[i] = tw
	}
	return out
}

// FilterOutboundByCompany keeps customer tweets and the replies written by one of companies.
func FilterOutboundByCompany(ts []tweets.Tweet, companies []string) []tweets.Tweet {
	allowed := make(map[string]bool, len(companies))
	for _, c := range companies {
		allowed[c] = true
	}
	var out []tweets.Tweet
	for _, tw := range ts {
		if tw.Inbound || allowed[tw.AuthorID] {
			out = append(out, tw)
		}
	}
	return out
}

// Sample draws round(frac*len(ts)) tweets without replacement. The result keeps
// the input order so that the same seed always yields the same table.
func Sample(ts []tweets.Tweet, frac float64, seed int64) []tweets.Tweet {
	if frac >= 1 {
		return append([]tweets.Tweet(nil), ts...)
	}
	n := int(math.Round(frac * float64(len(ts))))
	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(ts))[:n]
	sort.Ints(picked)
	out := make([]tweets.Tweet, 0, n)
	for _, i := range picked {
		out = append(out, ts[i])
	}
	return out
}

// AssignCompany sets Company to the author of the conversation's outbound tweets.
// A conversation answered by k companies yields k copies of each of its tweets,
// and conversations without any outbound tweet are dropped.
func AssignCompany(ts []tweets.Tweet) []tweets.Tweet {
	companies := make(map[int64][]string)
	for _, tw := range ts {
		if tw.Inbound {
			continue
		}
		if !contains(companies[tw.MainTweetID], tw.AuthorID) {
			companies[tw.MainTweetID] = append(companies[tw.MainTweetID], tw.AuthorID)
		}
	}
	var out []tweets.Tweet
	for _, tw := range ts {
		for _, c := range companies[tw.MainTweetID] {
			cp := tw
			cp.Company = c
			out = append(out, cp)
		}
	}
	return out
}

// RemoveMultiCompanyConversations drops conversations that involve more than one company.
func RemoveMultiCompanyConversations(ts []tweets.Tweet) []tweets.Tweet {
	companies := make(map[int64][]string)
	for _, tw := range ts {
		if !contains(companies[tw.MainTweetID], tw.Company) {
			companies[tw.MainTweetID] = append(companies[tw.MainTweetID], tw.Company)
		}
	}
	return keep(ts, func(tw tweets.Tweet) bool { return len(companies[tw.MainTweetID]) == 1 })
}

// RemoveNonConversational drops conversations that consist of a single tweet.
func RemoveNonConversational(ts []tweets.Tweet) []tweets.Tweet {
	counts := make(map[int64]int)
	for _, tw := range ts {
		counts[tw.MainTweetID]++
	}
	return keep(ts, func(tw tweets.Tweet) bool { return counts[tw.MainTweetID] > 1 })
}

// RemoveNonEnglish keeps tweets the detector classifies as English.
func RemoveNonEnglish(ts []tweets.Tweet, detector LanguageDetector) []tweets.Tweet {
	return keep(ts, func(tw tweets.Tweet) bool {
		return detector.IsEnglish(strings.ReplaceAll(tw.Text, "\n", ""))
	})
}

// CorrectInboundSpelling spell-corrects customer tweets; company replies are left as written.
func CorrectInboundSpelling(ts []tweets.Tweet, checker *SpellChecker) []tweets.Tweet {
	out := make([]tweets.Tweet, len(ts))
	for i, tw := range ts {
		if tw.Inbound {
			tw.Text = checker.CorrectText(tw.Text)
		}
		out[i] = tw
	}
	return out
}

// ByCompany splits tweets per company, in the order of companies.
func ByCompany(ts []tweets.Tweet, companies []string) map[string][]tweets.Tweet {
	out := make(map[string][]tweets.Tweet, len(companies))
	for _, c := range companies {
		out[c] = nil
	}
	for _, tw := range ts {
		if _, ok := out[tw.Company]; ok {
			out[tw.Company] = append(out[tw.Company], tw)
		}
	}
	return out
}

func keep(ts []tweets.Tweet, pred func(tweets.Tweet) bool) []tweets.Tweet {
	var out []tweets.Tweet
	for _, tw := range ts {
		if pred(tw) {
			out = append(out, tw)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
