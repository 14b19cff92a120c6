package responder

import "context"

// Echo repeats the trigger. It needs no model and is handy for wiring tests.
type Echo struct{}

// Respond returns "Echo <trigger>".
func (Echo) Respond(_ context.Context, req Request) (string, error) {
	return "Echo " + req.TriggerMessage, nil
}
