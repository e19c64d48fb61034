package ledger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/congo-pay/pockets/internal/amount"
)

// MaxNameLength is the longest pocket name accepted, in characters.
const MaxNameLength = 32

// ValidateName checks the pocket naming rules: 1 to 32 characters, no
// surrounding whitespace and no control characters.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0, n > MaxNameLength:
		return reject(ErrInvalidName, name, amount.Zero)
	case !utf8.ValidString(name):
		return reject(ErrInvalidName, name, amount.Zero)
	case strings.TrimSpace(name) != name:
		return reject(ErrInvalidName, name, amount.Zero)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return reject(ErrInvalidName, name, amount.Zero)
	}
	return nil
}

// SameName reports whether two pocket names collide under case folding.
func SameName(a, b string) bool {
	return fold(a) == fold(b)
}

// fold returns the key used for case-insensitive uniqueness. A Caser keeps
// state, so a new one is built per call.
func fold(name string) string {
	return cases.Fold().String(name)
}

func validateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return &Error{Kind: ErrInvalidOwner}
	}
	return nil
}
