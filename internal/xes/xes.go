// Package xes reads and writes event logs in the IEEE XES XML format.
package xes

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Standard attribute keys.
const (
	KeyConcept   = "concept:name"
	KeyTimestamp = "time:timestamp"
	KeyResource  = "org:resource"
)

// TimeLayout is the date format written for time:timestamp.
const TimeLayout = "2006-01-02T15:04:05.000-07:00"

// Attribute is a typed key/value pair. Type is the XES element name (string,
// date, int, float, boolean or id).
type Attribute struct {
	XMLName xml.Name
	Key     string `xml:"key,attr"`
	Value   string `xml:"value,attr"`
}

func String(key, value string) Attribute {
	return Attribute{XMLName: xml.Name{Local: "string"}, Key: key, Value: value}
}

func Int(key string, value int64) Attribute {
	return Attribute{XMLName: xml.Name{Local: "int"}, Key: key, Value: strconv.FormatInt(value, 10)}
}

func Date(key string, value time.Time) Attribute {
	return Attribute{XMLName: xml.Name{Local: "date"}, Key: key, Value: value.Format(TimeLayout)}
}

// Type returns the attribute's XES type.
func (a Attribute) Type() string { return a.XMLName.Local }

// Time parses a date attribute.
func (a Attribute) Time() (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05.000"} {
		if t, err := time.Parse(layout, a.Value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q for %s", a.Value, a.Key)
}

// Attributes is an ordered attribute list.
type Attributes []Attribute

// Get returns the value of key.
func (as Attributes) Get(key string) (string, bool) {
	for _, a := range as {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Find returns the attribute with key.
func (as Attributes) Find(key string) (Attribute, bool) {
	for _, a := range as {
		if a.Key == key {
			return a, true
		}
	}
	return Attribute{}, false
}

type Event struct {
	Attributes Attributes `xml:",any"`
}

type Trace struct {
	Attributes Attributes `xml:",any"`
	Events     []Event    `xml:"event"`
}

type Extension struct {
	Name   string `xml:"name,attr"`
	Prefix string `xml:"prefix,attr"`
	URI    string `xml:"uri,attr"`
}

type Classifier struct {
	Name string `xml:"name,attr"`
	Keys string `xml:"keys,attr"`
}

// Log is an XES document.
type Log struct {
	XMLName     xml.Name     `xml:"log"`
	Version     string       `xml:"xes.version,attr,omitempty"`
	Features    string       `xml:"xes.features,attr,omitempty"`
	Extensions  []Extension  `xml:"extension"`
	Classifiers []Classifier `xml:"classifier"`
	Attributes  Attributes   `xml:",any"`
	Traces      []Trace      `xml:"trace"`
}

// NewLog returns an empty log declaring the concept, time and org extensions.
func NewLog() *Log {
	return &Log{
		Version:  "1.0",
		Features: "nested-attributes",
		Extensions: []Extension{
			{Name: "Concept", Prefix: "concept", URI: "http://www.xes-standard.org/concept.xesext"},
			{Name: "Time", Prefix: "time", URI: "http://www.xes-standard.org/time.xesext"},
			{Name: "Organizational", Prefix: "org", URI: "http://www.xes-standard.org/org.xesext"},
		},
		Classifiers: []Classifier{{Name: "Activity", Keys: KeyConcept}},
	}
}

// Encode writes the log as indented XML.
func Encode(w io.Writer, l *Log) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("failed to encode XES: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Decode parses an XES document. Nested and list attributes are ignored.
func Decode(r io.Reader) (*Log, error) {
	var l Log
	if err := xml.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode XES: %w", err)
	}
	// <global> and similar declarations land in the catch-all without a key
	kept := l.Attributes[:0]
	for _, a := range l.Attributes {
		if a.Key != "" {
			kept = append(kept, a)
		}
	}
	l.Attributes = kept
	return &l, nil
}

// WriteFile encodes l to path, creating parent directories.
func WriteFile(path string, l *Log) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, l); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile decodes the XES file at path.
func ReadFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
