// Package bots hosts demo trading agents that drive the matching engine
// in-process, standing in for real order-intake clients.
package bots

import (
	"context"

	"matchbook/display"
	"matchbook/engine"
	"matchbook/refdata"
)

// Bot represents a trading agent that can be run under a supervisor.
type Bot interface {
	Start(ctx context.Context, client EngineClient)
}

// EngineClient abstracts the minimal surface bots need from the engine.
type EngineClient interface {
	Submit(ctx context.Context, params engine.OrderParams) error
	Depth(ctx context.Context, levels int) (display.Depth, error)
	Trades() <-chan engine.Trade
	Instrument() refdata.Instrument
	NextClientOrderID(prefix string) string
	OwnsOrder(clientOrderID string) bool
}
