// Package naming parses and builds the file names that carry company, sample
// size and direction between pipeline stages.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrMalformed is returned for file names that do not follow the expected pattern.
var ErrMalformed = errors.New("malformed file name")

// Labeled identifies a manually labeled sample: twcs-<company>-<tweets>-<direction>.xlsx.
type Labeled struct {
	Company   string
	Tweets    string
	Direction string
}

// Preprocessed identifies a preprocessed conversation table: twcs-<company>-preprocessed-<n>.xlsx.
type Preprocessed struct {
	Company string
	Tweets  string
}

// Mapping identifies a topic/activity mapping: twcs-<company>-<direction>-<type>.xlsx.
type Mapping struct {
	Company   string
	Direction string
	Type      string
}

func parts(filename string) []string {
	base := filepath.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return strings.Split(base, "-")
}

// ParseLabeled parses twcs-<company>-<tweets>-<direction>.
func ParseLabeled(filename string) (Labeled, error) {
	p := parts(filename)
	if len(p) != 4 || p[0] != "twcs" {
		return Labeled{}, fmt.Errorf("%w: %s", ErrMalformed, filename)
	}
	return Labeled{Company: p[1], Tweets: p[2], Direction: p[3]}, nil
}

// ParsePredicted parses twcs-<company>-<tweets>-<direction>-predicted.
func ParsePredicted(filename string) (Labeled, error) {
	p := parts(filename)
	if len(p) != 5 || p[0] != "twcs" || p[4] != "predicted" {
		return Labeled{}, fmt.Errorf("%w: %s", ErrMalformed, filename)
	}
	return Labeled{Company: p[1], Tweets: p[2], Direction: p[3]}, nil
}

// ParsePreprocessed parses twcs-<company>-preprocessed-<n>.
func ParsePreprocessed(filename string) (Preprocessed, error) {
	p := parts(filename)
	if len(p) < 4 || p[0] != "twcs" || p[2] != "preprocessed" {
		return Preprocessed{}, fmt.Errorf("%w: %s", ErrMalformed, filename)
	}
	return Preprocessed{Company: p[1], Tweets: p[3]}, nil
}

// ParseEventLog parses twcs-<company>-<n>.
func ParseEventLog(filename string) (Preprocessed, error) {
	p := parts(filename)
	if len(p) != 3 || p[0] != "twcs" {
		return Preprocessed{}, fmt.Errorf("%w: %s", ErrMalformed, filename)
	}
	return Preprocessed{Company: p[1], Tweets: p[2]}, nil
}

// ParseMapping parses twcs-<company>-<direction>-<type>.
func ParseMapping(filename string) (Mapping, error) {
	p := parts(filename)
	if len(p) != 4 || p[0] != "twcs" {
		return Mapping{}, fmt.Errorf("%w: %s", ErrMalformed, filename)
	}
	if p[3] != "topics" && p[3] != "activities" {
		return Mapping{}, fmt.Errorf("%w: unknown mapping type %q in %s", ErrMalformed, p[3], filename)
	}
	return Mapping{Company: p[1], Direction: p[2], Type: p[3]}, nil
}

func LabeledFile(company, tweets, direction string) string {
	return fmt.Sprintf("twcs-%s-%s-%s.xlsx", company, tweets, direction)
}

func PredictedFile(l Labeled) string {
	return fmt.Sprintf("twcs-%s-%s-%s-predicted.xlsx", l.Company, l.Tweets, l.Direction)
}

func TemplateFile(company string) string {
	return fmt.Sprintf("twcs-%s-nli.xlsx", company)
}

func PreprocessedFile(company string, n int) string {
	return fmt.Sprintf("twcs-%s-preprocessed-%d.xlsx", company, n)
}

func EventLogFile(company, tweets string) string {
	return fmt.Sprintf("twcs-%s-%s.xes", company, tweets)
}

func ActivityMappingFile(company string) string {
	return fmt.Sprintf("twcs-%s-outbound-activities.xlsx", company)
}

func TopicMappingFile(company string) string {
	return fmt.Sprintf("twcs-%s-inbound-topics.xlsx", company)
}

func CrossValidationFile(company, direction string) string {
	return fmt.Sprintf("cv_results-%s-%s.xlsx", company, direction)
}

func KeywordResultsFile(company, direction string) string {
	return fmt.Sprintf("keyword_results-%s-%s.xlsx", company, direction)
}

// DiscoveryFile names a process-discovery artefact, e.g. AmazonHelp-alpha_miner.dot.
func DiscoveryFile(company, algorithm, ext string) string {
	return fmt.Sprintf("%s-%s.%s", company, algorithm, ext)
}
