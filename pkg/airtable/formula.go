package airtable

import "strings"

// FieldEquals builds a filterByFormula expression matching a text field.
func FieldEquals(field, value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "{" + field + "}='" + escaped + "'"
}
