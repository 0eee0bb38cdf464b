package gateway

import "strings"

var cqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`*`, `\*`,
	`?`, `\?`,
	`^`, `\^`,
)

// cqlExact builds an exact-match CQL clause with the value quoted and its
// masking characters escaped.
func cqlExact(field string, value string) string {
	return strings.TrimSpace(field) + `=="` + cqlEscaper.Replace(value) + `"`
}

func cqlAnd(clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		if strings.TrimSpace(clause) != "" {
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " and ")
}
