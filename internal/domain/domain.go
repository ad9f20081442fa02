// Package domain holds the core types shared by the real-time fan-out layer:
// connection identity, group keys, subscription filters and the wire event envelope.
package domain

import (
	"fmt"
	"strings"
)

// ConnectionID identifies one live client session. IDs are assigned by the
// transport layer at upgrade time and are never reused while the process lives.
type ConnectionID string

// Identity is the authenticated principal attached to a connection by the
// auth layer before this subsystem sees it. UserID is empty for anonymous
// sessions.
type Identity struct {
	UserID string
}

// Anonymous reports whether the connection carries no authenticated user.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// Category is the subscription namespace a group key belongs to.
type Category string

const (
	CategoryPrices     Category = "prices"
	CategorySignals    Category = "signals"
	CategoryIndicators Category = "indicators"
	CategoryPortfolio  Category = "portfolio"
)

// Valid reports whether c is one of the known subscription categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrices, CategorySignals, CategoryIndicators, CategoryPortfolio:
		return true
	}
	return false
}

// Group is a named broadcast target, keyed as "<category>:<parameter>"
// (e.g. "signals:BTCUSDT", "indicators:BTCUSDT:1h", "portfolio:<userID>").
// A group has no existence beyond its current member set.
type Group string

// PricesGroup returns the group key for raw price ticks of a symbol.
func PricesGroup(symbol string) Group {
	return Group(string(CategoryPrices) + ":" + symbol)
}

// SignalsGroup returns the group key for trade signals of a symbol.
func SignalsGroup(symbol string) Group {
	return Group(string(CategorySignals) + ":" + symbol)
}

// IndicatorsGroup returns the group key for indicator updates of a
// symbol/timeframe pair.
func IndicatorsGroup(symbol, timeframe string) Group {
	return Group(string(CategoryIndicators) + ":" + symbol + ":" + timeframe)
}

// PortfolioGroup returns the per-user portfolio group key.
func PortfolioGroup(userID string) Group {
	return Group(string(CategoryPortfolio) + ":" + userID)
}

// NewGroup builds a group key from a category and a raw target string
// ("BTCUSDT" or "BTCUSDT:1h"). The target must be non-empty.
func NewGroup(category Category, target string) (Group, error) {
	if !category.Valid() {
		return "", fmt.Errorf("unknown category %q", category)
	}
	if target == "" {
		return "", fmt.Errorf("empty target for category %q", category)
	}
	if category == CategoryIndicators {
		symbol, timeframe, found := strings.Cut(target, ":")
		if !found || symbol == "" || timeframe == "" {
			return "", fmt.Errorf("indicators target %q must be in symbol:timeframe form", target)
		}
	} else if strings.ContainsRune(target, ':') {
		return "", fmt.Errorf("target %q must not contain ':'", target)
	}
	return Group(string(category) + ":" + target), nil
}

// Category returns the namespace prefix of the group key.
func (g Group) Category() Category {
	key := string(g)
	if i := strings.IndexByte(key, ':'); i > 0 {
		return Category(key[:i])
	}
	return Category(key)
}

// Target returns the parameter part of the group key (everything after the
// category prefix).
func (g Group) Target() string {
	key := string(g)
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return ""
}

// FilterParams are per-subscription delivery filters, confirmed against the
// event's own values at dispatch time rather than at subscribe time.
type FilterParams struct {
	// MinConfidence suppresses signal alerts below this confidence (0 = no filter).
	MinConfidence float64 `json:"minConfidence,omitempty"`
}

// Event is the envelope every server-originated message is wrapped in before
// it reaches a connection.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"ts"`
}
