// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docs

import (
	"math"
	"strings"
	"unicode"
)

// BM25 tuning constants.
const (
	// bm25K1 controls term frequency saturation.
	bm25K1 = 1.5

	// bm25B controls document length normalization.
	bm25B = 0.75

	// titleWeight repeats title terms so a title hit outranks a body hit.
	titleWeight = 3
)

// stopWords are dropped by tokenize. Question words are included because
// nearly every docs query starts with one.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "of": true, "on": true, "or": true, "our": true, "should": true,
	"tell": true, "that": true, "the": true, "this": true, "to": true, "we": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "with": true, "you": true, "about": true, "there": true,
	"explain": true, "describe": true, "find": true, "search": true,
}

// tokenize lowercases s and splits it on anything that is not a letter or
// digit. Stop words and single characters are dropped; repeats are kept.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

type bm25Doc struct {
	id  string
	tf  map[string]int
	len int
}

// bm25Index is an immutable inverted index built from a document snapshot.
type bm25Index struct {
	docs   []bm25Doc
	idf    map[string]float64
	avgLen float64
}

func buildBM25(docs []Document) *bm25Index {
	idx := &bm25Index{idf: make(map[string]float64)}
	if len(docs) == 0 {
		return idx
	}

	df := make(map[string]int)
	total := 0
	for _, d := range docs {
		terms := tokenize(d.Content)
		titleTerms := tokenize(d.Title)
		for range titleWeight {
			terms = append(terms, titleTerms...)
		}
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		total += len(terms)
		idx.docs = append(idx.docs, bm25Doc{id: d.ID, tf: tf, len: len(terms)})
	}

	n := len(idx.docs)
	idx.avgLen = float64(total) / float64(n)
	if idx.avgLen == 0 {
		idx.avgLen = 1
	}
	// Lucene-style smoothing keeps idf >= 1.
	for t, f := range df {
		idx.idf[t] = math.Log(float64(n+1)/float64(f+1)) + 1.0
	}
	return idx
}

// score returns raw BM25 scores by document id. Zero scores are omitted.
func (idx *bm25Index) score(query string) map[string]float64 {
	scores := make(map[string]float64)
	terms := tokenize(query)
	if len(terms) == 0 || len(idx.docs) == 0 {
		return scores
	}
	unique := make(map[string]bool, len(terms))
	for _, t := range terms {
		unique[t] = true
	}

	for _, d := range idx.docs {
		dl := float64(d.len)
		var s float64
		for t := range unique {
			tf, ok := d.tf[t]
			if !ok {
				continue
			}
			f := float64(tf)
			s += idx.idf[t] * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*dl/idx.avgLen))
		}
		if s > 0 {
			scores[d.id] = s
		}
	}
	return scores
}
