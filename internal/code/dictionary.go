package code

import (
	_ "embed"
	"strings"
)

//go:embed wordlist.txt
var wordlistRaw string

var (
	dictionary   []string
	dictionaryIx map[string]int
)

func init() {
	for _, line := range strings.Split(wordlistRaw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dictionary = append(dictionary, line)
	}
	dictionaryIx = make(map[string]int, len(dictionary))
	for i, w := range dictionary {
		dictionaryIx[w] = i
	}
}

// wordAt returns the dictionary word at index i.
func wordAt(i int) string {
	return dictionary[i]
}

// wordCount returns the number of entries in the dictionary.
func wordCount() int {
	return len(dictionary)
}

// knownWord reports whether w (already lowercased) is in the dictionary.
func knownWord(w string) bool {
	_, ok := dictionaryIx[w]
	return ok
}
