package rpccore

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// TokenSeparator separates the tokens of a subject.
	TokenSeparator = "."
	// WildcardOne matches exactly one token.
	WildcardOne = "*"
	// WildcardTail matches one or more trailing tokens.
	WildcardTail = ">"
)

// ValidateSubject checks that subject is made of non-empty tokens without
// whitespace. Wildcards are only accepted when wildcards is true, and ">"
// only as the last token.
func ValidateSubject(subject string, wildcards bool) error {
	if subject == "" {
		return errors.New("empty subject")
	}
	if strings.ContainsAny(subject, " \t\r\n") {
		return errors.Errorf("invalid subject %q: contains whitespace", subject)
	}
	tokens := strings.Split(subject, TokenSeparator)
	for i, token := range tokens {
		switch {
		case token == "":
			return errors.Errorf("invalid subject %q: empty token", subject)
		case token == WildcardOne || token == WildcardTail:
			if !wildcards {
				return errors.Errorf("invalid subject %q: wildcard not allowed", subject)
			}
			if token == WildcardTail && i != len(tokens)-1 {
				return errors.Errorf("invalid subject %q: %v must be the last token",
					subject, WildcardTail)
			}
		}
	}
	return nil
}

// SubjectMatches reports whether a concrete subject is covered by pattern.
func SubjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, TokenSeparator)
	st := strings.Split(subject, TokenSeparator)
	for i, p := range pt {
		if p == WildcardTail {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != WildcardOne && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
