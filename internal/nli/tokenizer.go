package nli

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Encoder turns a premise/hypothesis pair into model input ids and attention mask.
type Encoder interface {
	EncodePair(premise, hypothesis string) (ids, mask []int64, err error)
}

// HFEncoder encodes pairs with a HuggingFace tokenizer.json.
type HFEncoder struct {
	tk     *tokenizer.Tokenizer
	maxLen int
}

// LoadEncoder reads tokenizer.json from path. Pairs longer than maxLen lose
// tokens from the end of the premise (0 disables the limit).
func LoadEncoder(path string, maxLen int) (*HFEncoder, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &HFEncoder{tk: tk, maxLen: maxLen}, nil
}

func (e *HFEncoder) EncodePair(premise, hypothesis string) ([]int64, []int64, error) {
	encoding, err := e.tk.EncodePair(premise, hypothesis, true)
	if err != nil {
		return nil, nil, fmt.Errorf("tokenization failed: %w", err)
	}
	return truncate(toInt64(encoding.GetIds()), toInt64(encoding.GetAttentionMask()), encoding.GetSpecialTokenMask(), e.maxLen)
}

// truncate drops the tokens over maxLen from the end of the first segment,
// the run of ordinary tokens after the leading special tokens. The hypothesis
// and every special token are kept.
func truncate(ids, mask []int64, special []int, maxLen int) ([]int64, []int64, error) {
	if len(ids) != len(mask) || len(ids) != len(special) {
		return nil, nil, fmt.Errorf("token/mask length mismatch: %d vs %d vs %d", len(ids), len(mask), len(special))
	}
	if maxLen <= 0 || len(ids) <= maxLen {
		return ids, mask, nil
	}
	start := 0
	for start < len(ids) && special[start] == 1 {
		start++
	}
	end := start
	for end < len(ids) && special[end] == 0 {
		end++
	}
	excess := len(ids) - maxLen
	if end-start <= excess {
		return nil, nil, fmt.Errorf("premise of %d tokens cannot absorb %d excess tokens", end-start, excess)
	}
	cut := end - excess
	ids = append(ids[:cut:cut], ids[end:]...)
	mask = append(mask[:cut:cut], mask[end:]...)
	return ids, mask, nil
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
