// Copyright (c) 2016 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

// Package isupport builds the token lists advertised in RPL_ISUPPORT (005).
package isupport

import (
	"fmt"
	"slices"
	"strings"
)

const (
	maxLastArgLength = 400

	// a reply carries the target, at most 13 tokens and a trailing text
	maxParameters = 13
)

// List holds a set of ISUPPORT tokens. It is not safe for concurrent
// modification; build it, then share it read-only.
type List struct {
	tokens map[string]string
}

// NewList returns a new, empty List.
func NewList() *List {
	return &List{tokens: make(map[string]string)}
}

// Add sets a token with a value.
func (il *List) Add(name string, value string) {
	il.tokens[name] = value
}

// AddNoValue sets a token that has no value.
func (il *List) AddNoValue(name string) {
	il.tokens[name] = ""
}

// Contains returns whether the list contains a token.
func (il *List) Contains(name string) bool {
	_, ok := il.tokens[name]
	return ok
}

// Value returns the value of a token; ok is false if it is absent.
func (il *List) Value(name string) (value string, ok bool) {
	value, ok = il.tokens[name]
	return
}

func tokenString(name string, value string) string {
	if value == "" {
		return name
	}
	return fmt.Sprintf("%s=%s", name, value)
}

// Validate reports the first token that cannot be sent as an IRC parameter.
func (il *List) Validate() error {
	for _, token := range il.rendered() {
		if token == "" || token[0] == ':' || strings.Contains(token, " ") {
			return fmt.Errorf("bad isupport token (cannot be sent as IRC parameter): `%s`", token)
		}
		if strings.ContainsAny(token, "\n\r\x00") {
			return fmt.Errorf("bad isupport token (contains forbidden octets)")
		}
		if len(token) >= maxLastArgLength {
			return fmt.Errorf("bad isupport token (too long): `%s`", token)
		}
	}
	return nil
}

func (il *List) rendered() (tokens []string) {
	for name, value := range il.tokens {
		tokens = append(tokens, tokenString(name, value))
	}
	slices.Sort(tokens)
	return
}

// Replies splits the sorted tokens into reply-sized groups.
func (il *List) Replies() [][]string {
	return chunk(il.rendered())
}

// Difference returns the replies that move a client from il to newer:
// removed tokens as "-NAME", then added or changed tokens.
func (il *List) Difference(newer *List) [][]string {
	var tokens []string
	for name := range il.tokens {
		if _, ok := newer.tokens[name]; !ok {
			tokens = append(tokens, "-"+name)
		}
	}
	for name, value := range newer.tokens {
		if old, ok := il.tokens[name]; !ok || old != value {
			tokens = append(tokens, tokenString(name, value))
		}
	}
	slices.Sort(tokens)
	return chunk(tokens)
}

func chunk(tokens []string) (result [][]string) {
	var current []string
	length := 0
	for _, token := range tokens {
		if len(current) == maxParameters || length+len(token)+1 > maxLastArgLength {
			result = append(result, current)
			current = nil
			length = 0
		}
		if len(current) != 0 {
			length++
		}
		length += len(token)
		current = append(current, token)
	}
	if len(current) != 0 {
		result = append(result, current)
	}
	return
}
