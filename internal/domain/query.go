package domain

import "strings"

// Target says whose records a question is about.
type Target string

const (
	// TargetSelf means the caller asks only about their own records.
	TargetSelf Target = "SELF"
	// TargetOther means the question touches other employees.
	TargetOther Target = "OTHER"
)

// Verdict is the oracle's own read-only classification of the request.
type Verdict string

const (
	// VerdictOK marks a read-only request.
	VerdictOK Verdict = "OK"
	// VerdictForbidden marks a request to modify data.
	VerdictForbidden Verdict = "FORBIDDEN"
)

// Scope says whether a question belongs to the training programme domain.
type Scope string

const (
	// ScopeIn marks a question about training progress.
	ScopeIn Scope = "IN_SCOPE"
	// ScopeOut marks an off-topic question.
	ScopeOut Scope = "OUT_OF_SCOPE"
)

// QuerySpec is the oracle's structured rendering of one user question.
type QuerySpec struct {
	SQL     string  `json:"sql"`
	Target  Target  `json:"target"`
	Verdict Verdict `json:"error"`
	Scope   Scope   `json:"scope"`
}

// ResultSet holds rows retrieved for a single query.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Empty reports whether no rows were retrieved.
func (r ResultSet) Empty() bool { return len(r.Rows) == 0 }

// ColumnIndex returns the position of the named column, matched
// case-insensitively, or -1.
func (r ResultSet) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}
