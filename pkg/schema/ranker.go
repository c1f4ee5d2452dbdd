package schema

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern matches word tokens of at least two characters, mirroring the
// tokenizer used when the embedding store was precomputed.
var tokenPattern = regexp.MustCompile(`\b\w\w+\b`)

var englishStopWords = buildStopWords()

func buildStopWords() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "also",
		"am", "an", "and", "any", "are", "as", "at", "be", "because", "been",
		"before", "being", "below", "between", "both", "but", "by", "came",
		"can", "cannot", "could", "did", "do", "does", "doing", "down",
		"during", "each", "few", "for", "from", "further", "get", "had",
		"has", "have", "having", "he", "her", "here", "hers", "herself",
		"him", "himself", "his", "how", "i", "if", "in", "into", "is", "it",
		"its", "itself", "just", "me", "more", "most", "my", "myself", "no",
		"nor", "not", "now", "of", "off", "on", "once", "only", "or",
		"other", "our", "ours", "ourselves", "out", "over", "own", "per",
		"same", "she", "should", "so", "some", "such", "than", "that", "the",
		"their", "theirs", "them", "themselves", "then", "there", "these",
		"they", "this", "those", "through", "to", "too", "under", "until",
		"up", "very", "was", "we", "were", "what", "when", "where", "which",
		"while", "who", "whom", "why", "will", "with", "would", "you",
		"your", "yours", "yourself", "yourselves",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func tokenize(text string) []string {
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := englishStopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Vectorizer maps text to L2-normalized TF-IDF vectors over a fixed
// vocabulary. Inverse document frequencies are smoothed:
// idf = ln((1+N)/(1+df)) + 1.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// FitVectorizer builds a vocabulary and IDF weights from the documents.
func FitVectorizer(docs []string) *Vectorizer {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			seen[tok] = struct{}{}
		}
		for tok := range seen {
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	v := &Vectorizer{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(docs))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return v
}

// Transform vectorizes text against the fitted vocabulary. Out-of-vocabulary
// tokens are ignored.
func (v *Vectorizer) Transform(text string) []float64 {
	vec := make([]float64, len(v.idf))
	for _, tok := range tokenize(text) {
		if i, ok := v.vocabulary[tok]; ok {
			vec[i]++
		}
	}

	var norm float64
	for i := range vec {
		vec[i] *= v.idf[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// cosine of two L2-normalized vectors reduces to their dot product.
func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// EmbeddingStore carries a vectorizer fitted offline over schema documents.
// When a store is supplied the ranker scores with it instead of refitting
// against the live snapshot on every query.
type EmbeddingStore struct {
	Vectorizer *Vectorizer
}

// Ranker orders snapshot tables by lexical relevance to a query.
type Ranker struct {
	store *EmbeddingStore
}

// NewRanker creates a ranker. store may be nil, in which case a vectorizer is
// fitted over the snapshot corpus per call.
func NewRanker(store *EmbeddingStore) *Ranker {
	return &Ranker{store: store}
}

// RankTables returns up to topN table keys ordered by descending score. The
// sort is stable over the alphabetical key order, so zero-score tables keep a
// deterministic position.
func (r *Ranker) RankTables(query string, snap *Snapshot, topN int) []string {
	keys := make([]string, 0, len(snap.Tables))
	for key := range snap.Tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if len(keys) == 0 || topN <= 0 {
		return nil
	}

	var scores map[string]float64
	if r.store != nil && r.store.Vectorizer != nil {
		scores = r.scoreWithStore(query, snap, keys)
	} else {
		scores = r.scoreWithCorpus(query, snap, keys)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return scores[keys[i]] > scores[keys[j]]
	})

	if len(keys) > topN {
		keys = keys[:topN]
	}
	return keys
}

func (r *Ranker) scoreWithCorpus(query string, snap *Snapshot, keys []string) map[string]float64 {
	docs := make([]string, len(keys))
	for i, key := range keys {
		docs[i] = corpusDocument(key, snap.Tables[key])
	}

	v := FitVectorizer(docs)
	queryVec := v.Transform(query)

	scores := make(map[string]float64, len(keys))
	for i, key := range keys {
		scores[key] = cosine(queryVec, v.Transform(docs[i]))
	}
	return scores
}

// scoreWithStore scores against the precomputed vectorizer and adds a 0.1
// boost per column name mentioned verbatim in the query, capped at 0.5.
func (r *Ranker) scoreWithStore(query string, snap *Snapshot, keys []string) map[string]float64 {
	queryVec := r.store.Vectorizer.Transform(query)
	loweredQuery := strings.ToLower(query)

	scores := make(map[string]float64, len(keys))
	for _, key := range keys {
		t := snap.Tables[key]
		score := cosine(queryVec, r.store.Vectorizer.Transform(storeDocument(t)))

		var boost float64
		for _, name := range t.Columns.Names() {
			if strings.Contains(loweredQuery, strings.ToLower(name)) {
				boost += 0.1
			}
		}
		if boost > 0.5 {
			boost = 0.5
		}
		scores[key] = score + boost
	}
	return scores
}

// corpusDocument is the per-table document used when fitting on the live
// snapshot: table key, table description, then each column name and
// description.
func corpusDocument(key string, t *TableMeta) string {
	parts := []string{key}
	if t.Description != nil && *t.Description != "" {
		parts = append(parts, *t.Description)
	}
	for _, name := range t.Columns.Names() {
		parts = append(parts, name)
		if col, ok := t.Columns.Get(name); ok && col.Description != nil && *col.Description != "" {
			parts = append(parts, *col.Description)
		}
	}
	return strings.Join(parts, " ")
}

// storeDocument is the per-table document scored against a precomputed
// vectorizer: table description, then one entry per column preferring its
// description over its name.
func storeDocument(t *TableMeta) string {
	var parts []string
	if t.Description != nil && *t.Description != "" {
		parts = append(parts, *t.Description)
	}
	for _, name := range t.Columns.Names() {
		if col, ok := t.Columns.Get(name); ok && col.Description != nil && *col.Description != "" {
			parts = append(parts, *col.Description)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}
