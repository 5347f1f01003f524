package reflection

import (
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CamelCase converts a snake_case column name to an exported Go property name:
// "user_name" -> "UserName", "ID" -> "Id".
func CamelCase(column string) string {
	titleCaser := cases.Title(language.English)
	var b strings.Builder
	for _, part := range strings.Split(column, "_") {
		if part == "" {
			continue
		}
		b.WriteString(titleCaser.String(strings.ToLower(part)))
	}
	return b.String()
}

// PropertyForColumn returns the property of t a column auto-maps to, if any.
// Matching is case-insensitive; with underscoreToCamel, "user_name" also matches UserName.
func (a *Accessor) PropertyForColumn(t reflect.Type, column string, underscoreToCamel bool) (string, bool) {
	st := indirectType(t)
	if st == nil || st.Kind() != reflect.Struct {
		return "", false
	}
	candidates := []string{column}
	if underscoreToCamel {
		candidates = append(candidates, CamelCase(column))
	}
	ft := a.table(st)
	for _, c := range candidates {
		if f, ok := ft.lookup(st, c); ok {
			return f.Name, true
		}
	}
	return "", false
}
