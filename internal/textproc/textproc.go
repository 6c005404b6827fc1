// Package textproc normalizes raw page text for indexing: tokenization
// with stop-word removal, frequency counting, and fixed-size chunking.
package textproc

import (
	"sort"
	"strings"
	"unicode"
)

// Common English function words and connectives dropped during tokenization.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "is", "at", "which", "on", "a", "an", "and", "or", "but", "in",
		"with", "to", "for", "of", "as", "by", "that", "this", "it", "from",
		"they", "we", "you", "i", "me", "my", "your", "are", "was", "were",
		"been", "be", "have", "has", "had", "do", "does", "did", "will",
		"would", "could", "should", "may", "might", "must", "can", "shall",
		"am", "who", "what", "where", "when", "why", "how", "all", "any",
		"both", "each", "few", "more", "most", "other", "some", "such", "no",
		"nor", "not", "only", "own", "same", "so", "than", "too", "very",
		"now", "just", "last", "till", "unless",
		"about", "above", "across", "after", "against", "along", "among",
		"around", "before", "behind", "below", "beneath", "beside",
		"between", "beyond", "during", "except", "inside", "into", "near",
		"over", "through", "throughout", "toward", "under", "until", "upon",
		"within", "without", "outside", "underneath", "alongside", "amid",
		"amidst", "concerning", "regarding", "despite", "excluding",
		"following", "including", "pending", "plus", "versus", "via",
		"according", "because", "since", "although", "though", "however",
		"therefore", "moreover", "furthermore", "nevertheless", "meanwhile",
		"otherwise", "consequently", "accordingly", "hence", "thus",
	} {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases the text, splits on whitespace, trims non-alphabetic
// characters from token edges, and counts the surviving words. Tokens of
// length two or less and stop words are discarded.
func Tokenize(rawText string) map[string]int {
	frequencies := make(map[string]int)
	for _, field := range strings.Fields(strings.ToLower(rawText)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if len(word) <= 2 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		frequencies[word]++
	}
	return frequencies
}

// Chunk splits text into consecutive pieces of at most size characters,
// preserving order. Empty input yields no chunks.
func Chunk(text string, size int) []string {
	if size <= 0 || text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Resynthesize expands a frequency map back into a pseudo-text where each
// word appears as many times as it was counted, so frequent words dominate
// the embedded chunks. Words are emitted count-descending, then
// alphabetically, to keep the output deterministic.
func Resynthesize(frequencies map[string]int) string {
	words := make([]string, 0, len(frequencies))
	for w := range frequencies {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if frequencies[words[i]] != frequencies[words[j]] {
			return frequencies[words[i]] > frequencies[words[j]]
		}
		return words[i] < words[j]
	})

	var sb strings.Builder
	for _, w := range words {
		for n := 0; n < frequencies[w]; n++ {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w)
		}
	}
	return sb.String()
}

// DefaultChunkSize is the character length of raw-text chunks fed to the
// embedding worker.
const DefaultChunkSize = 500
