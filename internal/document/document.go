// Package document implements identity, matching, and grouping rules for
// remotely stored billing documents. File names carry a six-digit branch
// prefix followed by a nine-digit document number; everything here works
// on the digit projection of a name so separators and extensions never
// affect identity.
package document

import (
	"sort"
	"strings"
	"time"
)

// Type tells which remote tree a document came from.
type Type string

const (
	TypeNF     Type = "NF"
	TypeBoleto Type = "BOLETO"
)

// Hit is one remote file that matched a search.
type Hit struct {
	Path    string // full remote path
	Name    string // base name
	ModTime time.Time
	Type    Type
	Client  string // resolved client name, empty until enrichment
}

// Group bundles the documents that share a key, tax note first.
type Group struct {
	Key  string
	Hits []Hit
}

// Digits returns the digit characters of s in order.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Key derives the grouping key of a file name: the first fifteen digits
// when the name carries at least fifteen, otherwise all of its digits.
// An invoice and its tax note share the branch plus document number and
// therefore the key, even when trailing digits differ.
func Key(filename string) string {
	d := Digits(filename)
	if len(d) >= 15 {
		return d[:15]
	}
	return d
}

// Number extracts the display number from a file name. Names with a full
// branch prefix keep the nine digits that follow it; shorter names keep
// their last nine digits; leading zeros are stripped, with "0" standing
// in when nothing remains.
func Number(filename string) string {
	d := Digits(filename)
	var n string
	switch {
	case len(d) >= 15:
		n = strings.TrimLeft(d[6:15], "0")
	case len(d) >= 9:
		n = strings.TrimLeft(d[len(d)-9:], "0")
	default:
		n = strings.TrimLeft(d, "0")
	}
	if n == "" {
		return "0"
	}
	return n
}

// Match reports whether a file name matches the requested number. Both
// sides are reduced to digits; an empty request matches nothing. Literal
// mode pads the request with leading zeros to nine digits and, when the
// name is long enough to carry a branch prefix, requires equality with
// the nine digits after the prefix; shorter names fall back to
// containment. Non-literal mode is containment only, so every literal
// match is also a non-literal one.
func Match(filename, requested string, literal bool) bool {
	req := Digits(requested)
	if req == "" {
		return false
	}
	name := Digits(filename)
	if literal {
		if len(req) < 9 {
			req = strings.Repeat("0", 9-len(req)) + req
		}
		if len(name) >= 15 {
			return name[6:15] == req
		}
	}
	return strings.Contains(name, req)
}

// GroupHits collapses duplicates and groups related documents. Per
// (key, type) only the most recent hit survives, the last seen winning
// equal timestamps. Each group lists its tax note before its invoice,
// names ascending within a type, and groups come out in ascending
// numeric key order. The result is stable: regrouping a flattened
// result reproduces it.
func GroupHits(hits []Hit) []Group {
	type slot struct {
		key string
		typ Type
	}
	latest := make(map[slot]Hit, len(hits))
	for _, h := range hits {
		s := slot{Key(h.Name), h.Type}
		prev, ok := latest[s]
		if !ok || !h.ModTime.Before(prev.ModTime) {
			latest[s] = h
		}
	}

	byKey := make(map[string][]Hit, len(latest))
	for s, h := range latest {
		byKey[s.key] = append(byKey[s.key], h)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	// Digit strings: shorter means smaller, same length compares as text.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		sort.Slice(members, func(i, j int) bool {
			ri, rj := typeRank(members[i].Type), typeRank(members[j].Type)
			if ri != rj {
				return ri < rj
			}
			return members[i].Name < members[j].Name
		})
		groups = append(groups, Group{Key: k, Hits: members})
	}
	return groups
}

func typeRank(t Type) int {
	if t == TypeNF {
		return 0
	}
	return 1
}
