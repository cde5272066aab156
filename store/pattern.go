package store

import (
	"regexp"
	"strings"
)

/*
This file turns a `*`-wildcard pattern into a regular expression.

The contract is strict:
- `*` matches zero or more characters
- EVERY other character matches itself literally

An earlier generation of this matcher substituted `*` and then fed the
rest of the pattern straight into the regex engine. That made keys
containing `.`, `+`, `(` and friends match things they should not
("user.1" matching "userX1", for example). Escaping the whole pattern
with QuoteMeta first, and only then substituting the escaped `*`, keeps
the wildcard and nothing else.
*/

// compilePattern builds the anchored matcher for a wildcard pattern.
// QuoteMeta guarantees the result always compiles.
func compilePattern(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pattern)
	expr := "^" + strings.ReplaceAll(quoted, `\*`, "(?s:.*)") + "$"
	return regexp.MustCompile(expr)
}
