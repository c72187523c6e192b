package domain

import "strconv"

// UnknownDomain is the raw domain recorded for cases that omit one.
const UnknownDomain = "Unknown"

// Case is one test item in a contributor's dataset. Datasets are written by
// many hands, so the typed fields are read leniently from Raw and the raw
// record is kept for field-presence checks and rewriting.
type Case struct {
	// ID comes from "id", then "case_id", then "caseId".
	ID string
	// Domain is the raw "domain" value, UnknownDomain when absent.
	Domain     string
	DomainID   string
	DomainName string

	PearlLevel string
	Label      string

	// InitialAuthor falls back to "author" and then "annotations.author".
	InitialAuthor string
	Validator     string
	Validator2    string

	FinalScore  *float64
	FinalScore2 *float64

	Raw map[string]any
}

// CaseFromRecord lifts a decoded JSON object into a Case.
func CaseFromRecord(rec map[string]any) Case {
	c := Case{
		ID:            firstText(rec, "id", "case_id", "caseId"),
		Domain:        Text(rec["domain"]),
		DomainID:      Text(rec["domain_id"]),
		DomainName:    Text(rec["domain_name"]),
		PearlLevel:    Text(rec["pearl_level"]),
		Label:         Text(rec["label"]),
		InitialAuthor: firstText(rec, "initial_author", "author"),
		Validator:     Text(rec["validator"]),
		Validator2:    Text(rec["validator_2"]),
		Raw:           rec,
	}
	if c.Domain == "" {
		c.Domain = UnknownDomain
	}
	if c.InitialAuthor == "" {
		if ann, ok := rec["annotations"].(map[string]any); ok {
			c.InitialAuthor = Text(ann["author"])
		}
	}
	if f, ok := LooseNumeric(rec["final_score"]); ok {
		c.FinalScore = &f
	}
	if f, ok := LooseNumeric(rec["final_score_2"]); ok {
		c.FinalScore2 = &f
	}
	return c
}

// Pearl returns the parsed Pearl level.
func (c Case) Pearl() (PearlLevel, bool) { return ParsePearlLevel(c.PearlLevel) }

// HasField reports whether the raw record carries key, regardless of value.
func (c Case) HasField(key string) bool {
	_, ok := c.Raw[key]
	return ok
}

// FieldText returns the raw string value of key, untrimmed.
func (c Case) FieldText(key string) string {
	s, _ := c.Raw[key].(string)
	return s
}

func firstText(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := Text(rec[k]); s != "" {
			return s
		}
		if f, ok := Numeric(rec[k]); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ""
}
