// Package match implements the Sieve match engine: the three comparators,
// the match-types (is, contains, matches, regex, and the relational
// count/value), and the three address-parts, composed
// orthogonally. None of this package depends on
// extension/validator/compiler/interpreter — it is pure string/byte-slice
// logic, consulted by the interpreter (to evaluate tests) and by the
// message package.
package match

import (
	"strings"

	"golang.org/x/text/cases"
)

// Comparator names, as they appear in ":comparator" tag values.
const (
	ComparatorOctet        = "i;octet"
	ComparatorASCIICasemap = "i;ascii-casemap"
	ComparatorASCIINumeric = "i;ascii-numeric"
)

// DefaultComparator is used whenever a test omits an explicit ":comparator"
// tag.
const DefaultComparator = ComparatorASCIICasemap

// Comparator defines the three comparison primitives every Sieve match-type
// needs: exact equality, substring containment, and an ordering relation
// (used by the relational extension's ":value" match-type).
type Comparator interface {
	Name() string
	Equal(a, b string) bool
	Contains(haystack, needle string) bool
	Less(a, b string) bool
}

var asciiCasemapFold = cases.Fold()

type octetComparator struct{}

func (octetComparator) Name() string                    { return ComparatorOctet }
func (octetComparator) Equal(a, b string) bool           { return a == b }
func (octetComparator) Contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
func (octetComparator) Less(a, b string) bool { return a < b }

// asciiCasemapComparator case-folds both operands with
// golang.org/x/text/cases before an octet comparison.
type asciiCasemapComparator struct{}

func (asciiCasemapComparator) Name() string { return ComparatorASCIICasemap }

func (asciiCasemapComparator) Equal(a, b string) bool {
	return asciiCasemapFold.String(a) == asciiCasemapFold.String(b)
}

func (asciiCasemapComparator) Contains(haystack, needle string) bool {
	return strings.Contains(asciiCasemapFold.String(haystack), asciiCasemapFold.String(needle))
}

func (asciiCasemapComparator) Less(a, b string) bool {
	return asciiCasemapFold.String(a) < asciiCasemapFold.String(b)
}

// asciiNumericComparator treats each operand as a run of leading decimal
// digits; a non-digit character ends the number. A string
// with no leading digits is treated as 0, per i;ascii-numeric's defined
// behaviour for non-numeric input.
type asciiNumericComparator struct{}

func (asciiNumericComparator) Name() string { return ComparatorASCIINumeric }

func leadingNumber(s string) int64 {
	var n int64
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	return n
}

func (asciiNumericComparator) Equal(a, b string) bool {
	return leadingNumber(a) == leadingNumber(b)
}

func (c asciiNumericComparator) Contains(haystack, needle string) bool {
	return c.Equal(haystack, needle)
}

func (asciiNumericComparator) Less(a, b string) bool {
	return leadingNumber(a) < leadingNumber(b)
}

// Lookup returns the Comparator registered under name, and whether it was
// found.
func Lookup(name string) (Comparator, bool) {
	switch name {
	case ComparatorOctet:
		return octetComparator{}, true
	case ComparatorASCIICasemap:
		return asciiCasemapComparator{}, true
	case ComparatorASCIINumeric:
		return asciiNumericComparator{}, true
	default:
		return nil, false
	}
}
