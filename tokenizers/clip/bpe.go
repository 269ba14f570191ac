package clip

// bytePairEncoder applies the merge rules of a Vocabulary to single clusters.
type bytePairEncoder struct {
	vocab *Vocabulary
	cache *encodeCache
}

// encode appends the token IDs of cluster to out and returns the extended slice.
func (e *bytePairEncoder) encode(cluster string, out []int) []int {
	if cluster == "" {
		return out
	}
	if ids, found := e.cache.get(cluster); found {
		return append(out, ids...)
	}
	symbols := make([]int, len(cluster))
	for i := 0; i < len(cluster); i++ {
		symbols[i] = byteSymbols[cluster[i]]
	}
	symbols[len(symbols)-1] += numByteSymbols
	symbols = e.vocab.applyMerges(symbols)
	e.cache.add(cluster, symbols)
	return append(out, symbols...)
}

// applyMerges repeatedly merges the highest priority pair of adjacent symbols, until no pair has a merge
// rule. Every non-overlapping occurrence of the selected pair is merged, from left to right. The merge is
// done in place and the shortened slice is returned.
func (v *Vocabulary) applyMerges(symbols []int) []int {
	for len(symbols) > 1 {
		best := symbolPair{}
		bestID := -1
		for i := 0; i < len(symbols)-1; i++ {
			pair := symbolPair{symbols[i], symbols[i+1]}
			if id, found := v.merges[pair]; found && (bestID < 0 || id < bestID) {
				best, bestID = pair, id
			}
		}
		if bestID < 0 {
			break
		}

		n := 0
		for i := 0; i < len(symbols); i++ {
			if i < len(symbols)-1 && symbols[i] == best.left && symbols[i+1] == best.right {
				symbols[n] = bestID
				i++
			} else {
				symbols[n] = symbols[i]
			}
			n++
		}
		symbols = symbols[:n]
	}
	return symbols
}
