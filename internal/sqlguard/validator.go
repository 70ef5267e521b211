// Package sqlguard decides whether oracle-generated SQL is a single read-only
// SELECT confined to the directory table.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafe is wrapped by every rejection.
var ErrUnsafe = errors.New("unsafe query")

// forbiddenWords are rejected wherever they appear as a whole word outside
// string literals and quoted identifiers.
var forbiddenWords = map[string]struct{}{
	"INSERT":         {},
	"UPDATE":         {},
	"DELETE":         {},
	"ALTER":          {},
	"DROP":           {},
	"CREATE":         {},
	"ATTACH":         {},
	"DETACH":         {},
	"PRAGMA":         {},
	"VACUUM":         {},
	"REINDEX":        {},
	"TRUNCATE":       {},
	"LOAD_EXTENSION": {},
	"WRITEFILE":      {},
	"READFILE":       {},
}

// aliasStop lists words that may follow a table reference and are therefore
// never an alias.
var aliasStop = map[string]struct{}{
	"WHERE": {}, "GROUP": {}, "ORDER": {}, "LIMIT": {}, "HAVING": {}, "WINDOW": {},
	"JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {}, "CROSS": {}, "NATURAL": {},
	"OUTER": {}, "ON": {}, "USING": {}, "UNION": {}, "EXCEPT": {}, "INTERSECT": {},
	"INDEXED": {}, "NOT": {},
}

// Validator checks statements against a single permitted table.
type Validator struct {
	table string
}

// New returns a validator that only admits reads from table.
func New(table string) *Validator {
	return &Validator{table: table}
}

// IsSafe reports whether sql passes Check.
func (v *Validator) IsSafe(sql string) bool {
	return v.Check(sql) == nil
}

// Check returns nil for a single SELECT statement that reads only the
// permitted table and contains no data or schema modification keyword.
func (v *Validator) Check(sql string) error {
	toks, err := tokenize(sql)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafe, err)
	}
	if n := len(toks); n > 0 && toks[n-1].is(tokSymbol, ";") {
		toks = toks[:n-1]
	}
	if len(toks) == 0 {
		return fmt.Errorf("%w: empty statement", ErrUnsafe)
	}
	if !toks[0].is(tokWord, "SELECT") {
		return fmt.Errorf("%w: statement must start with SELECT", ErrUnsafe)
	}

	for i, t := range toks {
		switch t.kind {
		case tokSymbol:
			if t.text == ";" {
				return fmt.Errorf("%w: multiple statements", ErrUnsafe)
			}
		case tokWord:
			if _, bad := forbiddenWords[t.text]; bad {
				return fmt.Errorf("%w: forbidden keyword %s", ErrUnsafe, t.text)
			}
			if strings.HasPrefix(t.text, "SQLITE_") {
				return fmt.Errorf("%w: catalog access", ErrUnsafe)
			}
			if t.text == "FROM" && isDistinctFrom(toks, i) {
				continue
			}
			if t.text == "FROM" || t.text == "JOIN" {
				if err := v.checkTableRefs(toks, i+1); err != nil {
					return err
				}
			}
			// "expr IN table-name" reads a table without FROM.
			if t.text == "IN" && i+1 < len(toks) && !toks[i+1].is(tokSymbol, "(") {
				if err := v.checkTableName(toks, i+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkTableRefs walks a comma separated list of table references starting
// at toks[j]. Subqueries are left to the main scan.
func (v *Validator) checkTableRefs(toks []token, j int) error {
	for {
		if j >= len(toks) {
			return fmt.Errorf("%w: missing table name", ErrUnsafe)
		}
		if toks[j].is(tokSymbol, "(") {
			return nil
		}
		if err := v.checkTableName(toks, j); err != nil {
			return err
		}
		j++

		if j < len(toks) && toks[j].is(tokWord, "AS") {
			j += 2
		} else if j < len(toks) && isAlias(toks[j]) {
			j++
		}
		if j < len(toks) && toks[j].is(tokSymbol, ",") {
			j++
			continue
		}
		return nil
	}
}

// checkTableName requires toks[j] to name the permitted table directly.
func (v *Validator) checkTableName(toks []token, j int) error {
	if j >= len(toks) {
		return fmt.Errorf("%w: missing table name", ErrUnsafe)
	}
	t := toks[j]
	if t.kind != tokWord && t.kind != tokQuotedIdent {
		return fmt.Errorf("%w: unexpected %q where a table was expected", ErrUnsafe, t.text)
	}
	if j+1 < len(toks) && toks[j+1].is(tokSymbol, ".") {
		return fmt.Errorf("%w: schema-qualified table", ErrUnsafe)
	}
	if j+1 < len(toks) && toks[j+1].is(tokSymbol, "(") {
		return fmt.Errorf("%w: table-valued function %s", ErrUnsafe, t.text)
	}
	if !strings.EqualFold(t.text, v.table) {
		return fmt.Errorf("%w: table %s is not permitted", ErrUnsafe, t.text)
	}
	return nil
}

func isAlias(t token) bool {
	if t.kind == tokQuotedIdent {
		return true
	}
	if t.kind != tokWord {
		return false
	}
	_, stop := aliasStop[t.text]
	return !stop
}

// isDistinctFrom reports whether toks[i] is the FROM of "IS [NOT] DISTINCT FROM".
func isDistinctFrom(toks []token, i int) bool {
	if i < 2 || !toks[i-1].is(tokWord, "DISTINCT") {
		return false
	}
	prev := toks[i-2]
	return prev.is(tokWord, "IS") || prev.is(tokWord, "NOT")
}
