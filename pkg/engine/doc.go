// Package engine is the composition root that builds bots, responders,
// memories, tools and chat sources from a YAML configuration and runs the
// chat sources. Frontends observe conversation activity through the
// engine's notify.Bus.
package engine
