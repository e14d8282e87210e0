package preprocess

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxSecondEditRunes is the longest word searched at edit distance 2.
const maxSecondEditRunes = 20

// SpellChecker corrects words against a frequency dictionary, preferring the most
// frequent known word at edit distance 1, then 2.
type SpellChecker struct {
	freq    map[string]int
	letters []rune
}

// NewSpellChecker builds a checker from word frequencies; keys are lowercased.
func NewSpellChecker(freq map[string]int) *SpellChecker {
	sc := &SpellChecker{freq: make(map[string]int, len(freq))}
	seen := make(map[rune]bool)
	for w, n := range freq {
		w = norm.NFC.String(strings.ToLower(w))
		sc.freq[w] += n
		for _, r := range w {
			if !seen[r] {
				seen[r] = true
				sc.letters = append(sc.letters, r)
			}
		}
	}
	sort.Slice(sc.letters, func(i, j int) bool { return sc.letters[i] < sc.letters[j] })
	return sc
}

// LoadSpellChecker reads a dictionary with one "word [count]" entry per line.
// Lines starting with # are comments; a missing count means 1.
func LoadSpellChecker(filename string) (*SpellChecker, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary %s: %w", filename, err)
	}
	defer file.Close()

	freq := make(map[string]int)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		count := 1
		if len(fields) > 1 {
			if count, err = strconv.Atoi(fields[1]); err != nil {
				return nil, fmt.Errorf("dictionary %s line %d: invalid count %q", filename, lineNum, fields[1])
			}
		}
		freq[fields[0]] += count
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dictionary %s at line %d: %w", filename, lineNum, err)
	}
	return NewSpellChecker(freq), nil
}

// Len returns the number of dictionary words.
func (sc *SpellChecker) Len() int { return len(sc.freq) }

// Known reports whether word is in the dictionary, ignoring case.
func (sc *SpellChecker) Known(word string) bool {
	_, ok := sc.freq[norm.NFC.String(strings.ToLower(word))]
	return ok
}

// Correction returns the best replacement for word, or word itself when it is
// known or nothing within two edits is. Words over maxSecondEditRunes runes
// are only searched at distance 1.
func (sc *SpellChecker) Correction(word string) string {
	word = norm.NFC.String(strings.ToLower(word))
	if _, ok := sc.freq[word]; ok {
		return word
	}
	e1 := sc.edits(word)
	if best, ok := sc.best(e1); ok {
		return best
	}
	if utf8.RuneCountInString(word) > maxSecondEditRunes {
		return word
	}
	// distance-2 candidates are checked one neighbourhood at a time
	var best string
	bestFreq := -1
	for w := range e1 {
		cand, ok := sc.best(sc.edits(w))
		if !ok {
			continue
		}
		if n := sc.freq[cand]; n > bestFreq || (n == bestFreq && cand < best) {
			best, bestFreq = cand, n
		}
	}
	if bestFreq >= 0 {
		return best
	}
	return word
}

// CorrectText corrects every whitespace-separated token that needs checking and
// joins the result with single spaces. Tokens with upper-case letters, numbers,
// mentions and links are kept unchanged.
func (sc *SpellChecker) CorrectText(text string) string {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if !shouldCheck(tok) || sc.Known(tok) {
			continue
		}
		tokens[i] = sc.Correction(tok)
	}
	return strings.Join(tokens, " ")
}

func shouldCheck(tok string) bool {
	if tok != strings.ToLower(tok) {
		return false
	}
	if strings.HasPrefix(tok, "@") || strings.HasPrefix(tok, "#") || strings.HasPrefix(tok, "http") {
		return false
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return false
	}
	if utf8.RuneCountInString(tok) == 1 {
		r, _ := utf8.DecodeRuneInString(tok)
		return !unicode.IsPunct(r)
	}
	return true
}

// best picks the most frequent known candidate, lexicographically first on ties.
func (sc *SpellChecker) best(candidates map[string]bool) (string, bool) {
	var best string
	bestFreq := -1
	for w := range candidates {
		n, ok := sc.freq[w]
		if !ok {
			continue
		}
		if n > bestFreq || (n == bestFreq && w < best) {
			best, bestFreq = w, n
		}
	}
	return best, bestFreq >= 0
}

// edits returns every string one deletion, transposition, replacement or
// insertion away from word.
func (sc *SpellChecker) edits(word string) map[string]bool {
	rs := []rune(word)
	out := make(map[string]bool, len(rs)*(2*len(sc.letters)+2)+len(sc.letters))
	for i := 0; i <= len(rs); i++ {
		left, right := rs[:i], rs[i:]
		if len(right) > 0 {
			out[string(left)+string(right[1:])] = true
		}
		if len(right) > 1 {
			out[string(left)+string(right[1])+string(right[0])+string(right[2:])] = true
		}
		for _, c := range sc.letters {
			if len(right) > 0 {
				out[string(left)+string(c)+string(right[1:])] = true
			}
			out[string(left)+string(c)+string(right)] = true
		}
	}
	return out
}
