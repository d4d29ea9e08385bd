// Copyright (c) 2020 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package utils

import (
	"bytes"
	"regexp"
	"regexp/syntax"
	"strings"
)

// yet another glob implementation in Go

func addRegexp(buf *bytes.Buffer, glob string, submatch bool) (err error) {
	for _, r := range glob {
		switch r {
		case '*':
			if submatch {
				buf.WriteString("(.*)")
			} else {
				buf.WriteString(".*")
			}
		case '?':
			if submatch {
				buf.WriteString("(.)")
			} else {
				buf.WriteString(".")
			}
		case 0xFFFD:
			return &syntax.Error{Code: syntax.ErrInvalidUTF8, Expr: glob}
		default:
			buf.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return
}

// CompileGlob compiles a glob (`*` and `?` are the only metacharacters)
// into an anchored regular expression.
func CompileGlob(glob string, submatch bool) (result *regexp.Regexp, err error) {
	var buf bytes.Buffer
	buf.WriteByte('^')
	err = addRegexp(&buf, glob, submatch)
	if err != nil {
		return
	}
	buf.WriteByte('$')
	return regexp.Compile(buf.String())
}

// CompileMasks compiles a list of nick!user@host masks into a single
// regexp that matches any of them. Empty input never matches.
func CompileMasks(masks []string) (result *regexp.Regexp, err error) {
	var buf bytes.Buffer
	buf.WriteString("^(")
	for i, mask := range masks {
		if i != 0 {
			buf.WriteByte('|')
		}
		buf.WriteByte('(')
		err = addRegexp(&buf, mask, false)
		if err != nil {
			return
		}
		buf.WriteByte(')')
	}
	buf.WriteString(")$")
	if len(masks) == 0 {
		return regexp.Compile(`a\A`)
	}
	return regexp.Compile(buf.String())
}

// GlobToLike translates a glob into a SQL LIKE pattern with `\` as the
// escape character, so that the same filter can be pushed down to a database.
func GlobToLike(glob string) string {
	var buf strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			buf.WriteByte('%')
		case '?':
			buf.WriteByte('_')
		case '%', '_', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
