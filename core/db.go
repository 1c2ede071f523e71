package core

import "strings"

// DBOrdering is one ORDER BY term of a SQL query.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy renders an ORDER BY clause, or "" without terms.
func OrderBy(ordering ...DBOrdering) string {
	if len(ordering) == 0 {
		return ""
	}
	terms := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		terms = append(terms, ord.String())
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}
