package evaluation

import (
	"fmt"
	"strings"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
)

// KeywordColumns is the column order of keyword baseline result sheets.
var KeywordColumns = []string{"Topic/Activity", "Keyword", "MCC", "Accuracy", "Balanced Accuracy", "F1", "Items"}

// KeywordResult scores one topic or activity detected by keyword match.
type KeywordResult struct {
	Item    string
	Keyword string
	Scores
}

// KeywordPredict is 1 when keyword occurs in text, ignoring case.
func KeywordPredict(text, keyword string) int {
	if strings.Contains(strings.ToLower(text), strings.ToLower(keyword)) {
		return 1
	}
	return 0
}

// ItemColumn is the mapping column naming the item for a mapping type.
func ItemColumn(mappingType string) string {
	if mappingType == "topics" {
		return "Topic"
	}
	return "Activity"
}

// KeywordBaseline evaluates each item of mapping against the labeled table.
// An item listed on several rows is scored once, in first-row position, with
// the keyword of its last row. itemColumn is "Topic" or "Activity".
func KeywordBaseline(labeled, mapping *sheet.Table, itemColumn string) ([]KeywordResult, error) {
	items, err := mapping.Column(itemColumn)
	if err != nil {
		return nil, err
	}
	keywords, err := mapping.Column("Keyword")
	if err != nil {
		return nil, err
	}
	texts, err := labeled.Column("text")
	if err != nil {
		return nil, err
	}

	var order []string
	keywordOf := make(map[string]string, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := keywordOf[item]; !ok {
			order = append(order, item)
		}
		keywordOf[item] = keywords[i]
	}

	var results []KeywordResult
	for _, item := range order {
		keyword := keywordOf[item]
		yTrue, err := binaryColumn(labeled, item)
		if err != nil {
			return nil, fmt.Errorf("labels for %q: %w", item, err)
		}
		yPred := make([]int, len(texts))
		for j, text := range texts {
			yPred[j] = KeywordPredict(text, keyword)
		}
		results = append(results, KeywordResult{Item: item, Keyword: keyword, Scores: Evaluate(yTrue, yPred)})
	}
	return results, nil
}

// KeywordTable renders keyword results with KeywordColumns.
func KeywordTable(results []KeywordResult) *sheet.Table {
	table := sheet.NewTable(KeywordColumns...)
	for _, r := range results {
		table.Append(
			r.Item,
			r.Keyword,
			sheet.FormatFloat(r.MCC),
			sheet.FormatFloat(r.Accuracy),
			sheet.FormatFloat(r.BalancedAccuracy),
			sheet.FormatFloat(r.F1),
			sheet.FormatFloat(r.Items),
		)
	}
	return table
}
