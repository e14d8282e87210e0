package tweets

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
)

// TwitterTime is the created_at layout of the raw corpus.
const TwitterTime = "Mon Jan 2 15:04:05 -0700 2006"

// Raw corpus columns.
const (
	ColTweetID      = "tweet_id"
	ColAuthorID     = "author_id"
	ColInbound      = "inbound"
	ColCreatedAt    = "created_at"
	ColText         = "text"
	ColResponseID   = "response_tweet_id"
	ColInResponseTo = "in_response_to_tweet_id"
	ColMainTweetID  = "main_tweet_id"
	ColCompany      = "company"
)

var rawColumns = []string{ColTweetID, ColAuthorID, ColInbound, ColCreatedAt, ColText, ColResponseID, ColInResponseTo}

// ConversationColumns is the column order of preprocessed conversation tables.
var ConversationColumns = []string{
	ColMainTweetID, ColTweetID, ColInResponseTo, ColResponseID,
	ColCreatedAt, ColAuthorID, ColInbound, ColText, ColCompany,
}

// Tweet is one row of the customer-support corpus. InResponseTo and MainTweetID
// are 0 when unset.
type Tweet struct {
	TweetID         int64
	AuthorID        string
	Inbound         bool
	CreatedAt       time.Time
	Text            string
	ResponseTweetID string
	InResponseTo    int64
	MainTweetID     int64
	Company         string
}

// HasParent reports whether the tweet answers another tweet.
func (t *Tweet) HasParent() bool { return t.InResponseTo != 0 }

// IsConversationRoot reports whether the tweet opens its conversation.
func (t *Tweet) IsConversationRoot() bool { return t.TweetID == t.MainTweetID }

// ParseCreatedAt parses the Twitter timestamp layout (falling back to RFC 3339)
// and returns it in UTC.
func ParseCreatedAt(s string) (time.Time, error) {
	clean := strings.Join(strings.Fields(s), " ")
	if ts, err := time.Parse(TwitterTime, clean); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, clean)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse created_at %q: %w", s, err)
	}
	return ts.UTC(), nil
}

// ParseID reads a tweet id cell; blank and NaN are 0, "123.0" is 123.
func ParseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := sheet.ParseFloat(s)
	if err != nil {
		return 0, fmt.Errorf("invalid tweet id %q: %w", s, err)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid tweet id %q", s)
	}
	return int64(f), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "1.0":
		return true, nil
	case "false", "0", "0.0", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// FromRawTable converts the raw corpus table. Missing columns are an error;
// malformed rows are returned in skipped with their reason.
func FromRawTable(t *sheet.Table) (out []Tweet, skipped []error, err error) {
	for _, col := range rawColumns {
		if !t.Has(col) {
			return nil, nil, fmt.Errorf("%w: %s", sheet.ErrNoColumn, col)
		}
	}
	for i := range t.Rows {
		tw, err := rowToTweet(t, i)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("row %d: %w", i+1, err))
			continue
		}
		out = append(out, tw)
	}
	return out, skipped, nil
}

func rowToTweet(t *sheet.Table, i int) (Tweet, error) {
	var tw Tweet
	var err error
	if tw.TweetID, err = ParseID(t.Value(i, ColTweetID)); err != nil {
		return tw, err
	}
	if tw.TweetID == 0 {
		return tw, fmt.Errorf("missing tweet_id")
	}
	if tw.InResponseTo, err = ParseID(t.Value(i, ColInResponseTo)); err != nil {
		return tw, err
	}
	if tw.Inbound, err = parseBool(t.Value(i, ColInbound)); err != nil {
		return tw, err
	}
	if tw.CreatedAt, err = ParseCreatedAt(t.Value(i, ColCreatedAt)); err != nil {
		return tw, err
	}
	tw.AuthorID = t.Value(i, ColAuthorID)
	tw.Text = t.Value(i, ColText)
	tw.ResponseTweetID = t.Value(i, ColResponseID)
	if t.Has(ColMainTweetID) {
		if tw.MainTweetID, err = ParseID(t.Value(i, ColMainTweetID)); err != nil {
			return tw, err
		}
	}
	tw.Company = t.Value(i, ColCompany)
	return tw, nil
}

// FromConversationTable reads a preprocessed conversation table.
func FromConversationTable(t *sheet.Table) ([]Tweet, error) {
	for _, col := range []string{ColMainTweetID, ColTweetID, ColCreatedAt, ColAuthorID, ColText, ColCompany} {
		if !t.Has(col) {
			return nil, fmt.Errorf("%w: %s", sheet.ErrNoColumn, col)
		}
	}
	out := make([]Tweet, 0, t.Len())
	for i := range t.Rows {
		tw, err := rowToTweet(t, i)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, tw)
	}
	return out, nil
}

// ToConversationTable renders tweets with ConversationColumns.
func ToConversationTable(ts []Tweet) *sheet.Table {
	table := sheet.NewTable(ConversationColumns...)
	for _, tw := range ts {
		table.Append(
			formatID(tw.MainTweetID),
			formatID(tw.TweetID),
			formatID(tw.InResponseTo),
			tw.ResponseTweetID,
			tw.CreatedAt.UTC().Format(time.RFC3339),
			tw.AuthorID,
			strconv.FormatBool(tw.Inbound),
			tw.Text,
			tw.Company,
		)
	}
	return table
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
