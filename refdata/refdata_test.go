package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadReadsClosingPrices(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Symbols.csv",
		"1,BAC,Bank of America Corp\n"+
			"2,CSCO,Cisco Systems Inc\n")
	writeFile(t, dir, "BAC.csv",
		"2026-08-25,20.10,20.40,20.05,20.20\n"+
			"2026-08-26,20.20,20.35,20.10,20.25\n")
	writeFile(t, dir, "CSCO.csv",
		"2026-08-26,44.00,44.50,43.80,44.10\n")

	cache := New(nil)
	require.NoError(t, cache.Load(Config{DataDir: dir, SymbolFile: "Symbols.csv"}))

	bac, err := cache.Lookup("BAC")
	require.NoError(t, err)
	assert.Equal(t, 20.25, bac.ReferencePrice)

	csco, err := cache.Lookup("CSCO")
	require.NoError(t, err)
	assert.Equal(t, 44.10, csco.ReferencePrice)

	assert.Len(t, cache.All(), 2)
}

func TestLoadSkipsSymbolsWithoutPriceHistory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Symbols.csv",
		"1,BAC,Bank of America Corp\n"+
			"2,GHOST,No Price History Inc\n")
	writeFile(t, dir, "BAC.csv", "2026-08-26,20.20,20.35,20.10,20.25\n")

	cache := New(nil)
	require.NoError(t, cache.Load(Config{DataDir: dir, SymbolFile: "Symbols.csv"}))

	_, err := cache.Lookup("GHOST")
	require.Error(t, err)
	assert.Len(t, cache.All(), 1)
}

func TestLoadIgnoresBlankAndMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Symbols.csv",
		"\n"+
			"garbage-line\n"+
			"1,BAC,Bank of America Corp\n")
	writeFile(t, dir, "BAC.csv",
		"\n2026-08-26,20.20,20.35,20.10,20.25\n\n")

	cache := New(nil)
	require.NoError(t, cache.Load(Config{DataDir: dir, SymbolFile: "Symbols.csv"}))
	assert.Len(t, cache.All(), 1)
}

func TestLoadCustomSeparator(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Symbols.csv", "1|BAC|Bank of America Corp\n")
	writeFile(t, dir, "BAC.csv", "2026-08-26|20.20|20.35|20.10|20.25\n")

	cache := New(nil)
	require.NoError(t, cache.Load(Config{DataDir: dir, SymbolFile: "Symbols.csv", Separator: "|"}))

	bac, err := cache.Lookup("BAC")
	require.NoError(t, err)
	assert.Equal(t, 20.25, bac.ReferencePrice)
}

func TestLoadMissingSymbolFile(t *testing.T) {
	cache := New(nil)
	err := cache.Load(Config{DataDir: t.TempDir(), SymbolFile: "Symbols.csv"})
	require.Error(t, err)
}

func TestLookupOnEmptyCache(t *testing.T) {
	cache := New(nil)
	_, err := cache.Lookup("BAC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestLookupUnknownSymbol(t *testing.T) {
	cache := New(nil)
	cache.Put(Instrument{Name: "BAC", ReferencePrice: 20.25})

	_, err := cache.Lookup("NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown instrument")
}

func TestPutReplacesExistingEntry(t *testing.T) {
	cache := New(nil)
	cache.Put(Instrument{Name: "BAC", ReferencePrice: 20.25})
	cache.Put(Instrument{Name: "BAC", ReferencePrice: 21.00})

	bac, err := cache.Lookup("BAC")
	require.NoError(t, err)
	assert.Equal(t, 21.00, bac.ReferencePrice)
}

func TestInstrumentEqualByName(t *testing.T) {
	a := Instrument{Name: "BAC", ReferencePrice: 20.25}
	b := Instrument{Name: "BAC", ReferencePrice: 99.99}
	c := Instrument{Name: "CSCO", ReferencePrice: 20.25}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
