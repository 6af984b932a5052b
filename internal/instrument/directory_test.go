package instrument

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_Lookups(t *testing.T) {
	d, err := New([]Entry{{Symbol: "RELIANCE", Token: "2885"}, {Symbol: "tcs", Token: "11536"}})
	require.NoError(t, err)

	sym, ok := d.Symbol("11536")
	assert.True(t, ok)
	assert.Equal(t, "TCS", sym)

	tok, ok := d.Token("reliance")
	assert.True(t, ok)
	assert.Equal(t, "2885", tok)

	_, ok = d.Symbol("999")
	assert.False(t, ok)

	assert.Equal(t, []string{"RELIANCE", "TCS"}, d.Symbols())
	assert.Equal(t, 2, d.Len())
}

func TestDirectory_RejectsDuplicates(t *testing.T) {
	_, err := New([]Entry{{Symbol: "TCS", Token: "1"}, {Symbol: "TCS", Token: "2"}})
	assert.ErrorContains(t, err, "duplicate symbol")

	_, err = New([]Entry{{Symbol: "TCS", Token: "1"}, {Symbol: "INFY", Token: "1"}})
	assert.ErrorContains(t, err, "duplicate token")

	_, err = New([]Entry{{Symbol: "", Token: "1"}})
	assert.Error(t, err)
}

func TestDirectory_TokensReportsUnknown(t *testing.T) {
	d, err := FromMap(map[string]string{"TCS": "11536", "INFY": "1594"})
	require.NoError(t, err)

	tokens, err := d.Tokens([]string{"TCS", "NOPE", "INFY"})
	assert.Equal(t, []string{"11536", "1594"}, tokens)

	var unknown *UnknownSymbolsError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"NOPE"}, unknown.Symbols)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- symbol: SBIN\n  token: \"3045\"\n- symbol: ITC\n  token: \"1660\"\n"), 0o600))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Symbol: "SBIN", Token: "3045"}, {Symbol: "ITC", Token: "1660"}}, entries)
}
