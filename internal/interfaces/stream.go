package interfaces

import "context"

// Tick is one decoded data frame row from the quote stream.
type Tick struct {
	TrID   string
	Key    string
	Fields []string
}

type MarketStream interface {
	// Register adds a subscription before Run is called. The broker caps
	// the number of live subscriptions, so this fails fast past the cap.
	Register(trID string, keys ...string) error
	Run(ctx context.Context, onTick func(Tick)) error
}
