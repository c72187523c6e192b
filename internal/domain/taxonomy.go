package domain

import (
	"sort"
	"strconv"
	"strings"
)

// PearlLevel is a rung of Pearl's causal ladder.
type PearlLevel string

// The three Pearl levels. Any other value is invalid.
const (
	PearlL1 PearlLevel = "L1"
	PearlL2 PearlLevel = "L2"
	PearlL3 PearlLevel = "L3"
)

// PearlLevels lists the levels in ladder order.
var PearlLevels = []PearlLevel{PearlL1, PearlL2, PearlL3}

// ParsePearlLevel accepts exactly "L1", "L2" or "L3".
func ParsePearlLevel(s string) (PearlLevel, bool) {
	switch p := PearlLevel(s); p {
	case PearlL1, PearlL2, PearlL3:
		return p, true
	}
	return "", false
}

// DomainCode is one of the ten canonical topic codes D1..D10.
type DomainCode string

// Canonical domain codes.
const (
	D1  DomainCode = "D1"
	D2  DomainCode = "D2"
	D3  DomainCode = "D3"
	D4  DomainCode = "D4"
	D5  DomainCode = "D5"
	D6  DomainCode = "D6"
	D7  DomainCode = "D7"
	D8  DomainCode = "D8"
	D9  DomainCode = "D9"
	D10 DomainCode = "D10"
)

// DomainCodes lists the canonical codes in report order.
var DomainCodes = []DomainCode{D1, D2, D3, D4, D5, D6, D7, D8, D9, D10}

var domainDisplayNames = map[DomainCode]string{
	D1:  "Daily Life",
	D2:  "History",
	D3:  "Markets & Finance",
	D4:  "Medicine & Health",
	D5:  "Economics",
	D6:  "Environment & Climate",
	D7:  "Law & Ethics",
	D8:  "AI & Technology",
	D9:  "Sports & Performance",
	D10: "Social Science",
}

// Valid reports whether c is one of D1..D10.
func (c DomainCode) Valid() bool {
	_, ok := domainDisplayNames[c]
	return ok
}

// DisplayName returns the human-readable topic, or the code itself when
// the code is not canonical.
func (c DomainCode) DisplayName() string {
	if name, ok := domainDisplayNames[c]; ok {
		return name
	}
	return string(c)
}

// Label renders "D3 (Markets & Finance)" for report rows.
func (c DomainCode) Label() string {
	return string(c) + " (" + c.DisplayName() + ")"
}

// SortDomainKeys orders keys as D1..D10 first, then every other key
// lexically.
func SortDomainKeys(keys []string) {
	rank := func(k string) int {
		for i, c := range DomainCodes {
			if string(c) == k {
				return i
			}
		}
		return len(DomainCodes)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
}

// SortCaseIDs orders ids with LessCaseID.
func SortCaseIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return LessCaseID(ids[i], ids[j]) })
}

// LessCaseID orders ids by their first embedded integer, breaking ties by
// the full string. Ids without digits sort as zero.
func LessCaseID(a, b string) bool {
	na, nb := firstInt(a), firstInt(b)
	if na != nb {
		return na < nb
	}
	return a < b
}

// IDRange renders a sorted id span: "N/A" for none, the id itself for one,
// "first-last" otherwise.
func IDRange(ids []string) string {
	if len(ids) == 0 {
		return "N/A"
	}
	sorted := append([]string(nil), ids...)
	SortCaseIDs(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	return sorted[0] + "-" + sorted[len(sorted)-1]
}

func firstInt(s string) int {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0
	}
	end := start
	for end < len(s) && isDigit(rune(s[end])) {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0
	}
	return n
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
