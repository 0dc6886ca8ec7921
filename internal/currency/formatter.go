package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// StorageKey is the preference key for the selected display currency.
const StorageKey = "currency"

var ErrUnsupportedCurrency = errors.New("currency: unsupported currency")

// Persister stores opaque preference values by key.
type Persister interface {
	GetPreference(ctx context.Context, key string) ([]byte, error)
	PutPreference(ctx context.Context, key string, value []byte) error
}

type rate struct {
	perUSD float64
	symbol string
	suffix bool
}

// MAD has no predefined unit in x/text.
var MAD = currency.MustParseISO("MAD")

// rates are fixed conversions from the USD base unit.
var rates = map[currency.Unit]rate{
	currency.USD: {perUSD: 1, symbol: "$"},
	currency.EUR: {perUSD: 0.92, symbol: "€"},
	MAD:          {perUSD: 9.85, symbol: "د.م.", suffix: true},
}

// Formatter converts base-unit prices into the selected display currency.
type Formatter struct {
	persister Persister
	logger    *zap.Logger
	printer   *message.Printer

	mu      sync.RWMutex
	current currency.Unit

	listenersMu sync.Mutex
	listeners   []func()
}

// NewFormatter restores the persisted currency, falling back to fallbackCode.
func NewFormatter(ctx context.Context, p Persister, fallbackCode string, logger *zap.Logger) (*Formatter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	unit, err := parse(fallbackCode)
	if err != nil {
		return nil, err
	}
	f := &Formatter{
		persister: p,
		logger:    logger,
		printer:   message.NewPrinter(language.English),
		current:   unit,
	}
	if p == nil {
		return f, nil
	}
	raw, err := p.GetPreference(ctx, StorageKey)
	if err != nil {
		logger.Debug("no stored currency preference", zap.Error(err))
		return f, nil
	}
	if stored, err := parse(strings.Trim(string(raw), `"`)); err == nil {
		f.current = stored
	} else {
		logger.Warn("ignoring stored currency preference", zap.ByteString("value", raw), zap.Error(err))
	}
	return f, nil
}

func parse(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	if _, ok := rates[unit]; !ok {
		return currency.Unit{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, unit)
	}
	return unit, nil
}

// Supported lists the selectable currency codes.
func Supported() []string {
	return []string{currency.USD.String(), currency.EUR.String(), MAD.String()}
}

// Current returns the selected ISO code.
func (f *Formatter) Current() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current.String()
}

// SetCurrency selects and persists a new display currency.
func (f *Formatter) SetCurrency(ctx context.Context, code string) error {
	unit, err := parse(code)
	if err != nil {
		return err
	}
	if f.persister != nil {
		if err := f.persister.PutPreference(ctx, StorageKey, []byte(`"`+unit.String()+`"`)); err != nil {
			return fmt.Errorf("currency: persist: %w", err)
		}
	}
	f.mu.Lock()
	f.current = unit
	f.mu.Unlock()

	f.listenersMu.Lock()
	listeners := append([]func(){}, f.listeners...)
	f.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Subscribe registers fn to run after every currency change.
func (f *Formatter) Subscribe(fn func()) {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Convert returns price expressed in the selected currency.
func (f *Formatter) Convert(price float64) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return price * rates[f.current].perUSD
}

// Format renders price in the selected currency with two decimals.
func (f *Formatter) Format(price float64) string {
	f.mu.RLock()
	r := rates[f.current]
	f.mu.RUnlock()

	amount := f.printer.Sprintf("%.2f", price*r.perUSD)
	if r.suffix {
		return amount + " " + r.symbol
	}
	return r.symbol + amount
}
