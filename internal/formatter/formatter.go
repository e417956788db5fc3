// Package formatter implements the pure parameter-substitution rule used to
// build a renderer's REST arguments from its configured format string.
package formatter

import "strings"

const (
	placeholderHostname = "${rest_hostname}"
	placeholderPort     = "${rest_port}"
	placeholderSchema   = "${rest_schema}"
)

// Format replaces every occurrence of ${rest_hostname}, ${rest_port} and
// ${rest_schema} in format with the given values, all in a single pass over
// format. Replacement text is never re-scanned, so a hostname or schema that
// itself contains a placeholder-looking substring is not expanded further.
func Format(format, hostname, port, schema string) string {
	replacer := strings.NewReplacer(
		placeholderHostname, hostname,
		placeholderPort, port,
		placeholderSchema, schema,
	)
	return replacer.Replace(format)
}
