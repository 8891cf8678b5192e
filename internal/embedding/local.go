package embedding

import (
	"cmp"
	"hash/fnv"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode"
)

const (
	defaultDimensions     = 1536
	defaultVocabularyCap  = 10000
	defaultVocabularyKeep = 8000
	maxTokens             = 1000
	minTokenLen           = 3
)

// Local is a deterministic TF-IDF embedder. It learns document frequencies
// from every text it sees, so its output depends on call order. Terms are
// hashed into a fixed number of slots to keep vectors comparable across
// vocabulary growth.
type Local struct {
	dims int
	cap  int
	keep int

	mu    sync.Mutex
	df    map[string]int
	total int
}

// NewLocal creates a local embedder. Zero arguments use the defaults
// (1536 dimensions, 10000 terms pruned down to 8000).
func NewLocal(dims, vocabCap, vocabKeep int) *Local {
	if dims <= 0 {
		dims = defaultDimensions
	}
	if vocabCap <= 0 {
		vocabCap = defaultVocabularyCap
	}
	if vocabKeep <= 0 || vocabKeep > vocabCap {
		vocabKeep = min(defaultVocabularyKeep, vocabCap)
	}
	return &Local{dims: dims, cap: vocabCap, keep: vocabKeep, df: make(map[string]int)}
}

// Embed observes text, updating the vocabulary, and returns its unit vector.
// Texts with no usable tokens yield an all-zero vector.
func (l *Local) Embed(text string) []float32 {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}

	l.mu.Lock()
	l.observe(counts)
	weights := make(map[string]float64, len(counts))
	for term, n := range counts {
		df, ok := l.df[term]
		if !ok {
			continue
		}
		tf := float64(n) / float64(len(tokens))
		idf := math.Log(1 + float64(l.total)/float64(df))
		weights[term] = tf * idf
	}
	l.mu.Unlock()

	vec := make([]float32, l.dims)
	for term, w := range weights {
		vec[slot(term, l.dims)] += float32(w)
	}
	normalize(vec)
	return vec
}

// VocabularySize returns the number of tracked terms.
func (l *Local) VocabularySize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.df)
}

// Documents returns how many texts have been observed.
func (l *Local) Documents() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Reset forgets the vocabulary.
func (l *Local) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.df)
	l.total = 0
}

// observe must be called with mu held.
func (l *Local) observe(counts map[string]int) {
	l.total++
	for term := range counts {
		l.df[term]++
	}
	if len(l.df) > l.cap {
		l.prune()
	}
}

// prune keeps the keep most frequent terms. Ties go to the lexically
// smaller term so pruning is deterministic.
func (l *Local) prune() {
	type termFreq struct {
		term string
		df   int
	}
	all := make([]termFreq, 0, len(l.df))
	for t, n := range l.df {
		all = append(all, termFreq{t, n})
	}
	slices.SortFunc(all, func(a, b termFreq) int {
		if c := cmp.Compare(b.df, a.df); c != 0 {
			return c
		}
		return strings.Compare(a.term, b.term)
	})
	clear(l.df)
	for _, tf := range all[:l.keep] {
		l.df[tf.term] = tf.df
	}
}

// tokenize lowercases, splits on non-word characters and drops short tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < minTokenLen {
			continue
		}
		out = append(out, f)
		if len(out) == maxTokens {
			break
		}
	}
	return out
}

func slot(term string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(dims))
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	mag := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= mag
	}
}
