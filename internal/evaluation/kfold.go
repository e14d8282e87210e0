package evaluation

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrTooFewMembers is returned when no class has at least k members.
var ErrTooFewMembers = errors.New("n_splits cannot be greater than the number of members in each class")

// StratifiedKFold splits sample indices into k test folds that preserve class
// proportions. Classes are encoded in order of first appearance; fold i receives
// the per-class counts of every k-th element of the sorted encoded labels,
// starting at i. With rng set, fold assignments are shuffled within each class.
func StratifiedKFold(y []int, k int, rng *rand.Rand) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("k-fold cross-validation requires at least 2 splits, got %d", k)
	}
	if k > len(y) {
		return nil, fmt.Errorf("cannot have %d splits greater than the number of samples %d", k, len(y))
	}

	codes := make(map[int]int)
	encoded := make([]int, len(y))
	for i, v := range y {
		c, ok := codes[v]
		if !ok {
			c = len(codes)
			codes[v] = c
		}
		encoded[i] = c
	}
	nClasses := len(codes)
	counts := make([]int, nClasses)
	for _, c := range encoded {
		counts[c]++
	}
	tooFew := true
	for _, n := range counts {
		if k <= n {
			tooFew = false
		}
	}
	if tooFew {
		return nil, fmt.Errorf("%w: k=%d, counts=%v", ErrTooFewMembers, k, counts)
	}

	sorted := append([]int(nil), encoded...)
	sort.Ints(sorted)
	allocation := make([][]int, k)
	for i := 0; i < k; i++ {
		allocation[i] = make([]int, nClasses)
		for j := i; j < len(sorted); j += k {
			allocation[i][sorted[j]]++
		}
	}

	testFold := make([]int, len(y))
	for class := 0; class < nClasses; class++ {
		var folds []int
		for i := 0; i < k; i++ {
			for n := 0; n < allocation[i][class]; n++ {
				folds = append(folds, i)
			}
		}
		if rng != nil {
			rng.Shuffle(len(folds), func(a, b int) { folds[a], folds[b] = folds[b], folds[a] })
		}
		next := 0
		for idx, c := range encoded {
			if c == class {
				testFold[idx] = folds[next]
				next++
			}
		}
	}

	out := make([][]int, k)
	for idx, f := range testFold {
		out[f] = append(out[f], idx)
	}
	return out, nil
}
