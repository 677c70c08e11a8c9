package sqlbuilder

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrStatementRejected trips when an assembled statement contains a
// construct the builder can never legitimately produce. This is a safety
// net behind identifier whitelisting and parameter binding, not the primary
// defense.
var ErrStatementRejected = errors.New("statement rejected by sql guard")

var guardPatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{"ddl", regexp.MustCompile(`(?i)\b(DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE)\b`)},
	{"file_access", regexp.MustCompile(`(?i)\b(LOAD_FILE|INTO\s+OUTFILE|INTO\s+DUMPFILE)\b`)},
	{"inline_comment", regexp.MustCompile(`(--|/\*|#)`)},
	{"union_select", regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`)},
	{"stacked_statement", regexp.MustCompile(`;`)},
}

func ValidateSQL(sql string) error {
	for _, p := range guardPatterns {
		if p.re.MatchString(sql) {
			return fmt.Errorf("%w: %s", ErrStatementRejected, p.label)
		}
	}
	return nil
}
