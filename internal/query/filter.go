package query

import (
	"fmt"
	"strings"

	"github.com/ashureev/trainingdesk/internal/domain"
)

// OwnRows drops rows whose EMPLOYEE_ID or EMPLOYEE_NAME column names someone
// other than id. Rows without either column are kept as they are.
func OwnRows(rs domain.ResultSet, id domain.Identity) domain.ResultSet {
	idCol := rs.ColumnIndex("EMPLOYEE_ID")
	nameCol := rs.ColumnIndex("EMPLOYEE_NAME")
	if idCol < 0 && nameCol < 0 {
		return rs
	}

	firstName := id.Name
	if f := strings.Fields(id.Name); len(f) > 0 {
		firstName = f[0]
	}

	out := domain.ResultSet{Columns: rs.Columns}
	for _, row := range rs.Rows {
		if idCol >= 0 && cell(row, idCol) != id.ID {
			continue
		}
		if idCol < 0 && nameCol >= 0 {
			name := cell(row, nameCol)
			if !strings.EqualFold(name, id.Name) && !strings.EqualFold(name, firstName) {
				continue
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func cell(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// EchoesSQL reports whether a narration repeats the executed query or
// otherwise exposes SQL text.
func EchoesSQL(narration, sql string) bool {
	n := squash(narration)
	if q := squash(strings.TrimSuffix(strings.TrimSpace(sql), ";")); q != "" && strings.Contains(n, q) {
		return true
	}
	return strings.Contains(n, "select ") && strings.Contains(n, " from employees")
}

func squash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
