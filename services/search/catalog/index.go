// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Tokenize splits a text in lowercase ascii words
func Tokenize(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// InvertedIndex maps each token to the sorted indices of the records containing it
type InvertedIndex map[string][]int

// BuildIndex creates the inverted index of the given records, indices are positions in the slice
func BuildIndex(records []*Record) InvertedIndex {
	index := InvertedIndex{}
	for recordIdx, record := range records {
		for _, token := range Tokenize(record.SearchText()) {
			postings := index[token]
			// Records are visited in order, only the last posting can be a duplicate
			if len(postings) > 0 && postings[len(postings)-1] == recordIdx {
				continue
			}
			index[token] = append(postings, recordIdx)
		}
	}
	return index
}

// Tokens returns the number of distinct tokens
func (index InvertedIndex) Tokens() int {
	return len(index)
}
