// Package producer contains the simulated event producers that drive the
// fan-out layer: a random-walk price feed, a periodic signal scanner, an
// indicator feed and a portfolio valuer. They stand in for the real market
// data and analytics collaborators and exercise the full publish surface
// (plain, throttled and filtered).
package producer
