// Package param maps symbolic settings onto instrument protocol tokens and
// back.
package param

import (
	"fmt"
	"strings"

	"github.com/neilo40/scopewave/internal/scpi"
)

// Entry pairs a canonical symbol with its spelling on the wire.
type Entry[S comparable] struct {
	Symbol S
	Token  string
}

type tokenCase int

const (
	caseAsIs tokenCase = iota
	caseUpper
	caseLower
)

type options struct {
	tcase  tokenCase
	prefix bool
}

// Option tunes how an Enum spells and matches tokens.
type Option func(*options)

// Upper sends tokens in upper case.
func Upper() Option { return func(o *options) { o.tcase = caseUpper } }

// Lower sends tokens in lower case.
func Lower() Option { return func(o *options) { o.tcase = caseLower } }

// MatchPrefix accepts replies and inputs that merely start with a declared
// token, e.g. "NEGative" for "NEG". The longest matching token wins.
func MatchPrefix() Option { return func(o *options) { o.prefix = true } }

// Enum is a bidirectional symbol/token table for one parameter. It is built
// once at setup and read-only afterwards.
type Enum[S comparable] struct {
	name     string
	opts     options
	entries  []Entry[S]
	bySymbol map[S]int
	byToken  map[string]int
}

// New builds an Enum. Duplicate symbols or tokens are a programming error and
// panic.
func New[S comparable](name string, entries []Entry[S], opts ...Option) *Enum[S] {
	e := &Enum[S]{
		name:     name,
		entries:  make([]Entry[S], len(entries)),
		bySymbol: make(map[S]int, len(entries)),
		byToken:  make(map[string]int, len(entries)),
	}
	for _, o := range opts {
		o(&e.opts)
	}
	for i, ent := range entries {
		ent.Token = e.spell(ent.Token)
		if _, dup := e.bySymbol[ent.Symbol]; dup {
			panic(fmt.Sprintf("param %s: duplicate symbol %v", name, ent.Symbol))
		}
		key := fold(ent.Token)
		if _, dup := e.byToken[key]; dup {
			panic(fmt.Sprintf("param %s: duplicate token %s", name, ent.Token))
		}
		e.entries[i] = ent
		e.bySymbol[ent.Symbol] = i
		e.byToken[key] = i
	}
	return e
}

// Strings builds an Enum whose symbols are also the token spellings, the
// common case for settings such as coupling ("ac", "dc").
func Strings(name string, symbols []string, opts ...Option) *Enum[string] {
	entries := make([]Entry[string], len(symbols))
	for i, s := range symbols {
		entries[i] = Entry[string]{Symbol: s, Token: s}
	}
	return New(name, entries, opts...)
}

func (e *Enum[S]) Name() string { return e.name }

// Symbols lists the declared symbols in declaration order.
func (e *Enum[S]) Symbols() []S {
	out := make([]S, len(e.entries))
	for i, ent := range e.entries {
		out[i] = ent.Symbol
	}
	return out
}

// Allowed lists the declared symbols as text, for error messages.
func (e *Enum[S]) Allowed() []string {
	out := make([]string, len(e.entries))
	for i, ent := range e.entries {
		out[i] = fmt.Sprint(ent.Symbol)
	}
	return out
}

func (e *Enum[S]) Contains(s S) bool {
	_, ok := e.bySymbol[s]
	return ok
}

// Token converts a symbol to its wire token.
func (e *Enum[S]) Token(s S) (string, error) {
	i, ok := e.bySymbol[s]
	if !ok {
		return "", e.invalid(s)
	}
	return e.entries[i].Token, nil
}

// Symbol converts an instrument reply back to the canonical symbol.
func (e *Enum[S]) Symbol(reply string) (S, error) {
	r := fold(reply)
	if i, ok := e.match(r); ok {
		return e.entries[i].Symbol, nil
	}
	var zero S
	return zero, scpi.Protocolf(reply, "unknown %s token", e.name)
}

// Parse converts human input (a symbol's text, a token, or with MatchPrefix a
// longer spelling of a token) to the canonical symbol.
func (e *Enum[S]) Parse(text string) (S, error) {
	t := fold(text)
	for _, ent := range e.entries {
		if fold(fmt.Sprint(ent.Symbol)) == t {
			return ent.Symbol, nil
		}
	}
	if i, ok := e.match(t); ok {
		return e.entries[i].Symbol, nil
	}
	var zero S
	return zero, e.invalid(text)
}

func (e *Enum[S]) match(folded string) (int, bool) {
	if i, ok := e.byToken[folded]; ok {
		return i, true
	}
	if !e.opts.prefix {
		return 0, false
	}
	best, bestLen := -1, 0
	for i, ent := range e.entries {
		t := fold(ent.Token)
		if len(t) > bestLen && strings.HasPrefix(folded, t) && extends(t, folded[len(t):]) {
			best, bestLen = i, len(t)
		}
	}
	return best, best >= 0
}

// extends reports whether rest may follow token in a longer spelling.
// Only letters may follow, and nothing may follow a token ending in a digit:
// "CHAN12" and "CHAN1X" are not spellings of CHAN1.
func extends(token, rest string) bool {
	if rest == "" {
		return true
	}
	if last := token[len(token)-1]; last >= '0' && last <= '9' {
		return false
	}
	for _, r := range rest {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (e *Enum[S]) invalid(v interface{}) error {
	return &scpi.ValidationError{Param: e.name, Value: v, Allowed: e.Allowed()}
}

func (e *Enum[S]) spell(token string) string {
	switch e.opts.tcase {
	case caseUpper:
		return strings.ToUpper(token)
	case caseLower:
		return strings.ToLower(token)
	}
	return token
}

func fold(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
