// Package script parses and replays cache operation scripts against a store
// driven by a simulated clock.
package script
