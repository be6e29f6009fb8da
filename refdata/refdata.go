// Package refdata loads and serves the instrument reference data the
// matching engine trades against. Instruments are loaded once at startup
// from flat files and never mutated afterwards.
package refdata

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Instrument is an immutable reference-data entry. Identity is the name;
// the reference price is the last known closing price and seeds demo
// clients when the book is empty.
type Instrument struct {
	Name           string
	ReferencePrice float64
}

// Equal reports whether two instruments refer to the same listing.
func (i Instrument) Equal(other Instrument) bool {
	return i.Name == other.Name
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s@%s", i.Name, decimal.NewFromFloat(i.ReferencePrice).String())
}

// Config locates the reference files. The symbol file lists one listing per
// line; each listed symbol has a companion <NAME>.csv price history whose
// last line carries the closing price.
type Config struct {
	DataDir    string
	SymbolFile string
	Separator  string
}

const (
	priceFileExt     = ".csv"
	closePriceColumn = 4
)

// Cache is the lookup-by-name service handed to the engine. It replaces a
// global symbol cache with an explicitly owned object.
type Cache struct {
	mu     sync.RWMutex
	byName map[string]Instrument
	log    *zap.Logger
}

// New returns an empty cache. Populate it with Load or Put before handing
// it to the engine.
func New(log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		byName: make(map[string]Instrument),
		log:    log,
	}
}

// Put registers an instrument, replacing any previous entry with the same
// name. Intended for startup wiring and tests.
func (c *Cache) Put(inst Instrument) {
	c.mu.Lock()
	c.byName[inst.Name] = inst
	c.mu.Unlock()
}

// Load reads the symbol list and each symbol's closing price file. Symbols
// without a readable price history are skipped with an error log rather
// than aborting the whole load.
func (c *Cache) Load(cfg Config) error {
	sep := cfg.Separator
	if sep == "" {
		sep = ","
	}
	symbolPath := filepath.Join(cfg.DataDir, cfg.SymbolFile)
	f, err := os.Open(symbolPath)
	if err != nil {
		return fmt.Errorf("refdata: open symbol file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 3 {
			c.log.Warn("unexpected symbol line format", zap.String("line", line))
			continue
		}
		name := strings.TrimSpace(fields[1])
		price, err := c.loadClosingPrice(cfg.DataDir, name, sep)
		if err != nil {
			c.log.Error("no usable price history for symbol",
				zap.String("symbol", name), zap.Error(err))
			continue
		}
		c.Put(Instrument{Name: name, ReferencePrice: price})
		c.log.Info("loaded instrument", zap.String("symbol", name), zap.Float64("referencePrice", price))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("refdata: read symbol file: %w", err)
	}
	return nil
}

func (c *Cache) loadClosingPrice(dataDir, name, sep string) (float64, error) {
	path := filepath.Join(dataDir, name+priceFileExt)
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if last == "" {
		return 0, fmt.Errorf("price file %s is empty", path)
	}
	fields := strings.Split(last, sep)
	if len(fields) <= closePriceColumn {
		return 0, fmt.Errorf("price line %q has no close column", last)
	}
	px, err := decimal.NewFromString(strings.TrimSpace(fields[closePriceColumn]))
	if err != nil {
		return 0, fmt.Errorf("parse close price: %w", err)
	}
	return px.InexactFloat64(), nil
}

// Lookup resolves an instrument by name. It fails when the name is unknown
// or when the cache has not been populated yet.
func (c *Cache) Lookup(name string) (Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.byName) == 0 {
		return Instrument{}, fmt.Errorf("refdata: cache not initialized, cannot resolve %q", name)
	}
	inst, ok := c.byName[name]
	if !ok {
		return Instrument{}, fmt.Errorf("refdata: unknown instrument %q", name)
	}
	return inst, nil
}

// All returns a copy of every registered instrument, used to pre-warm one
// order book per instrument at startup.
func (c *Cache) All() []Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Instrument, 0, len(c.byName))
	for _, inst := range c.byName {
		out = append(out, inst)
	}
	return out
}
