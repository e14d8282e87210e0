package naming

import (
	"errors"
	"testing"
)

func TestParseLabeled(t *testing.T) {
	got, err := ParseLabeled("data/labeled/twcs-AmazonHelp-200-inbound.xlsx")
	if err != nil {
		t.Fatalf("ParseLabeled failed: %v", err)
	}
	want := Labeled{Company: "AmazonHelp", Tweets: "200", Direction: "inbound"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if LabeledFile(got.Company, got.Tweets, got.Direction) != "twcs-AmazonHelp-200-inbound.xlsx" {
		t.Errorf("LabeledFile does not round trip")
	}
}

func TestParsePredictedRoundTrip(t *testing.T) {
	l := Labeled{Company: "SpotifyCares", Tweets: "100", Direction: "outbound"}
	got, err := ParsePredicted(PredictedFile(l))
	if err != nil {
		t.Fatalf("ParsePredicted failed: %v", err)
	}
	if got != l {
		t.Errorf("got %+v, want %+v", got, l)
	}
}

func TestParsePreprocessedAndEventLog(t *testing.T) {
	p, err := ParsePreprocessed(PreprocessedFile("AppleSupport", 1234))
	if err != nil {
		t.Fatalf("ParsePreprocessed failed: %v", err)
	}
	if p.Company != "AppleSupport" || p.Tweets != "1234" {
		t.Errorf("Unexpected %+v", p)
	}
	e, err := ParseEventLog(EventLogFile(p.Company, p.Tweets))
	if err != nil {
		t.Fatalf("ParseEventLog failed: %v", err)
	}
	if e != p {
		t.Errorf("got %+v, want %+v", e, p)
	}
}

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping(TopicMappingFile("AmazonHelp"))
	if err != nil {
		t.Fatalf("ParseMapping failed: %v", err)
	}
	if m.Direction != "inbound" || m.Type != "topics" {
		t.Errorf("Unexpected %+v", m)
	}
	if _, err := ParseMapping("twcs-AmazonHelp-inbound-stuff.xlsx"); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestMalformedNames(t *testing.T) {
	bad := []string{"notes.xlsx", "twcs-AmazonHelp.xlsx", "foo-a-b-c.xlsx"}
	for _, name := range bad {
		if _, err := ParseLabeled(name); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseLabeled(%q) expected ErrMalformed, got %v", name, err)
		}
	}
	if _, err := ParsePredicted("twcs-a-1-inbound.xlsx"); err == nil {
		t.Error("Expected error for labeled name passed to ParsePredicted")
	}
}
