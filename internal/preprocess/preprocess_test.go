package preprocess

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/tweets"
)

type fakeDetector struct{}

func (fakeDetector) IsEnglish(text string) bool { return !strings.Contains(text, "bonjour") }

var base = time.Date(2017, 10, 31, 12, 0, 0, 0, time.UTC)

func tw(id, parent int64, author string, inbound bool, minute int, text string) tweets.Tweet {
	return tweets.Tweet{
		TweetID:      id,
		InResponseTo: parent,
		AuthorID:     author,
		Inbound:      inbound,
		CreatedAt:    base.Add(time.Duration(minute) * time.Minute),
		Text:         text,
	}
}

func corpus() []tweets.Tweet {
	return []tweets.Tweet{
		tw(3, 2, "c1", true, 3, "thanks"),
		tw(1, 0, "c1", true, 1, "my order\nis late"),
		tw(2, 1, "AmazonHelp", false, 2, "sorry to hear that"),
		tw(4, 1, "OtherCo", false, 4, "try us"),
		tw(5, 0, "c2", true, 5, "bonjour le monde"),
		tw(6, 5, "AmazonHelp", false, 6, "hello"),
		tw(7, 0, "c3", true, 7, "lonely tweet"),
		tw(8, 0, "c4", true, 8, "hi"),
		tw(9, 8, "AppleSupport", false, 9, "hey"),
		tw(10, 8, "AmazonHelp", false, 10, "hey there"),
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAssignThreads(t *testing.T) {
	in := []tweets.Tweet{
		tw(3, 2, "c", true, 3, ""),
		tw(1, 0, "c", true, 1, ""),
		tw(2, 1, "b", false, 2, ""),
		tw(10, 9, "c", true, 0, ""),
		tw(20, 0, "c", true, 0, ""),
	}
	out := AssignThreads(in)
	require.Len(t, out, 5)

	var ids, mains []int64
	for _, o := range out {
		ids = append(ids, o.TweetID)
		mains = append(mains, o.MainTweetID)
	}
	assert.Equal(t, []int64{1, 2, 3, 10, 20}, ids)
	assert.Equal(t, []int64{1, 1, 1, 9, 20}, mains)
	assert.True(t, out[0].IsConversationRoot())
	// input untouched
	assert.Zero(t, in[0].MainTweetID)
}

func TestAssignThreadsCycle(t *testing.T) {
	out := AssignThreads([]tweets.Tweet{tw(5, 6, "a", true, 0, ""), tw(6, 5, "b", false, 1, "")})
	assert.Equal(t, int64(5), out[0].MainTweetID)
	assert.Equal(t, int64(5), out[1].MainTweetID)
}

func TestAssignCompanyAndMultiCompany(t *testing.T) {
	threaded := AssignThreads(corpus())
	withCompany := AssignCompany(threaded)

	byConv := map[int64]map[string]bool{}
	for _, x := range withCompany {
		if byConv[x.MainTweetID] == nil {
			byConv[x.MainTweetID] = map[string]bool{}
		}
		byConv[x.MainTweetID][x.Company] = true
	}
	assert.NotContains(t, byConv, int64(7), "conversation without a company reply must disappear")
	assert.Len(t, byConv[8], 2)

	single := RemoveMultiCompanyConversations(withCompany)
	for _, x := range single {
		assert.NotEqual(t, int64(8), x.MainTweetID)
	}
}

func TestSampleIsSeededAndOrdered(t *testing.T) {
	var in []tweets.Tweet
	for i := int64(1); i <= 10; i++ {
		in = append(in, tw(i, 0, "a", true, int(i), ""))
	}
	a := Sample(in, 0.5, 1868)
	b := Sample(in, 0.5, 1868)
	require.Len(t, a, 5)
	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1].TweetID, a[i].TweetID)
	}
	assert.Len(t, Sample(in, 1, 1), 10)
}

func TestPipeline(t *testing.T) {
	out := Pipeline(corpus(), Options{
		Companies:      []string{"AmazonHelp", "AppleSupport"},
		SampleFraction: 1,
		Seed:           1868,
		Detector:       fakeDetector{},
	}, discard())

	require.Len(t, out, 3)
	for i, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, out[i].TweetID)
		assert.Equal(t, int64(1), out[i].MainTweetID)
		assert.Equal(t, "AmazonHelp", out[i].Company)
	}
	assert.Equal(t, "my order is late", out[0].Text)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "twcs.csv")
	table := sheet.NewTable("tweet_id", "author_id", "inbound", "created_at", "text", "response_tweet_id", "in_response_to_tweet_id")
	for _, x := range corpus() {
		parent := ""
		if x.HasParent() {
			parent = sheet.FormatFloat(float64(x.InResponseTo))
		}
		inbound := "False"
		if x.Inbound {
			inbound = "True"
		}
		table.Append(sheet.FormatFloat(float64(x.TweetID)), x.AuthorID, inbound, x.CreatedAt.Format(tweets.TwitterTime), x.Text, "", parent)
	}
	require.NoError(t, sheet.WriteCSV(raw, table))

	out := filepath.Join(dir, "preprocessed")
	written, err := Run(Options{
		RawCSV:         raw,
		OutDir:         out,
		Companies:      []string{"AmazonHelp", "AppleSupport"},
		SampleFraction: 1,
		Seed:           1868,
		Detector:       fakeDetector{},
	}, discard())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "twcs-AmazonHelp-preprocessed-3.xlsx"),
		filepath.Join(out, "twcs-AppleSupport-preprocessed-0.xlsx"),
	}, written)

	got, err := sheet.ReadFile(written[0])
	require.NoError(t, err)
	conv, err := tweets.FromConversationTable(got)
	require.NoError(t, err)
	require.Len(t, conv, 3)
	assert.Equal(t, int64(1), conv[2].MainTweetID)

	_, err = os.Stat(written[1])
	assert.NoError(t, err)
}

func TestRunMissingCorpus(t *testing.T) {
	_, err := Run(Options{RawCSV: filepath.Join(t.TempDir(), "nope.csv")}, discard())
	assert.Error(t, err)
}
