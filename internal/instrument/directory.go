// Package instrument maps exchange symbols to feed tokens.
package instrument

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one symbol/token pair.
type Entry struct {
	Symbol string `yaml:"symbol"`
	Token  string `yaml:"token"`
}

// Directory is an immutable bidirectional symbol/token lookup.
type Directory struct {
	byToken  map[string]string
	bySymbol map[string]string
}

// UnknownSymbolsError lists symbols the directory does not know.
type UnknownSymbolsError struct {
	Symbols []string
}

func (e *UnknownSymbolsError) Error() string {
	return fmt.Sprintf("unknown symbols: %s", strings.Join(e.Symbols, ", "))
}

// New builds a directory, rejecting duplicate symbols or tokens.
func New(entries []Entry) (*Directory, error) {
	d := &Directory{
		byToken:  make(map[string]string, len(entries)),
		bySymbol: make(map[string]string, len(entries)),
	}
	for i, e := range entries {
		sym := normalize(e.Symbol)
		tok := strings.TrimSpace(e.Token)
		if sym == "" || tok == "" {
			return nil, fmt.Errorf("instrument %d: symbol and token are required", i)
		}
		if prev, ok := d.bySymbol[sym]; ok {
			return nil, fmt.Errorf("duplicate symbol %s (tokens %s, %s)", sym, prev, tok)
		}
		if prev, ok := d.byToken[tok]; ok {
			return nil, fmt.Errorf("duplicate token %s (symbols %s, %s)", tok, prev, sym)
		}
		d.bySymbol[sym] = tok
		d.byToken[tok] = sym
	}
	return d, nil
}

// FromMap builds a directory from symbol -> token.
func FromMap(m map[string]string) (*Directory, error) {
	entries := make([]Entry, 0, len(m))
	for sym, tok := range m {
		entries = append(entries, Entry{Symbol: sym, Token: tok})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	return New(entries)
}

// LoadFile reads a YAML list of entries.
func LoadFile(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse instruments: %w", err)
	}
	return entries, nil
}

func (d *Directory) Symbol(token string) (string, bool) {
	s, ok := d.byToken[token]
	return s, ok
}

func (d *Directory) Token(symbol string) (string, bool) {
	t, ok := d.bySymbol[normalize(symbol)]
	return t, ok
}

// Tokens resolves symbols in order. Unknown symbols are reported in an
// *UnknownSymbolsError alongside the tokens that did resolve.
func (d *Directory) Tokens(symbols []string) ([]string, error) {
	tokens := make([]string, 0, len(symbols))
	var unknown []string
	for _, s := range symbols {
		if t, ok := d.Token(s); ok {
			tokens = append(tokens, t)
			continue
		}
		unknown = append(unknown, s)
	}
	if len(unknown) > 0 {
		return tokens, &UnknownSymbolsError{Symbols: unknown}
	}
	return tokens, nil
}

// Symbols returns every known symbol, sorted.
func (d *Directory) Symbols() []string {
	out := make([]string, 0, len(d.bySymbol))
	for s := range d.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (d *Directory) Len() int { return len(d.bySymbol) }

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
