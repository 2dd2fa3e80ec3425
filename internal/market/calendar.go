package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leon-biju/trading-simulator/internal/config"
	"github.com/leon-biju/trading-simulator/internal/types"
)

var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
	"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

// Exchange is a venue with fixed local trading hours.
type Exchange struct {
	Code     string
	Name     string
	Location *time.Location
	Open     time.Duration // offset from local midnight
	Close    time.Duration
	Days     map[time.Weekday]bool
}

// IsOpenAt reports whether the exchange is trading at t.
func (e *Exchange) IsOpenAt(t time.Time) bool {
	local := t.In(e.Location)
	if !e.Days[local.Weekday()] {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.Location)
	since := local.Sub(midnight)
	return since >= e.Open && since <= e.Close
}

// Calendar answers market-hours questions for the configured exchanges.
type Calendar struct {
	exchanges map[string]*Exchange
	now       func() time.Time

	mu        sync.RWMutex
	overrides map[string]bool
}

func NewCalendar(cfgs []config.ExchangeConfig) (*Calendar, error) {
	c := &Calendar{
		exchanges: make(map[string]*Exchange, len(cfgs)),
		now:       time.Now,
		overrides: make(map[string]bool),
	}
	for _, cfg := range cfgs {
		ex, err := newExchange(cfg)
		if err != nil {
			return nil, err
		}
		c.exchanges[ex.Code] = ex
	}
	return c, nil
}

func newExchange(cfg config.ExchangeConfig) (*Exchange, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: %w", cfg.Code, err)
	}
	open, err := clockOffset(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("exchange %s open: %w", cfg.Code, err)
	}
	closeAt, err := clockOffset(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("exchange %s close: %w", cfg.Code, err)
	}

	days := make(map[time.Weekday]bool)
	if len(cfg.TradingDays) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			days[d] = true
		}
	}
	for _, name := range cfg.TradingDays {
		d, ok := weekdays[strings.ToUpper(name)[:min(3, len(name))]]
		if !ok {
			return nil, fmt.Errorf("exchange %s: unknown trading day %q", cfg.Code, name)
		}
		days[d] = true
	}

	return &Exchange{
		Code:     strings.ToUpper(cfg.Code),
		Name:     cfg.Name,
		Location: loc,
		Open:     open,
		Close:    closeAt,
		Days:     days,
	}, nil
}

func clockOffset(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// WithClock replaces the time source.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	c.now = now
	return c
}

// SetOverride forces an exchange open or closed regardless of its hours.
func (c *Calendar) SetOverride(code string, open bool) {
	c.mu.Lock()
	c.overrides[strings.ToUpper(code)] = open
	c.mu.Unlock()
}

func (c *Calendar) ClearOverride(code string) {
	c.mu.Lock()
	delete(c.overrides, strings.ToUpper(code))
	c.mu.Unlock()
}

// IsOpen reports whether code is trading now. Unknown exchanges are closed.
func (c *Calendar) IsOpen(code string) bool {
	code = strings.ToUpper(code)
	c.mu.RLock()
	forced, ok := c.overrides[code]
	c.mu.RUnlock()
	if ok {
		return forced
	}

	ex, ok := c.exchanges[code]
	if !ok {
		return false
	}
	return ex.IsOpenAt(c.now())
}

// IsTradable is true for active assets whose exchange is open, and for
// active assets that are not exchange listed.
func (c *Calendar) IsTradable(_ context.Context, asset *types.Asset) bool {
	if asset == nil || !asset.Active {
		return false
	}
	if asset.ExchangeCode == "" {
		return true
	}
	return c.IsOpen(asset.ExchangeCode)
}

// OpenExchanges lists the codes of exchanges trading now, sorted.
func (c *Calendar) OpenExchanges() []string {
	var open []string
	for code := range c.exchanges {
		if c.IsOpen(code) {
			open = append(open, code)
		}
	}
	sort.Strings(open)
	return open
}

func (c *Calendar) Exchange(code string) (*Exchange, bool) {
	ex, ok := c.exchanges[strings.ToUpper(code)]
	return ex, ok
}
