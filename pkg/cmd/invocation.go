// Package cmd is a transport-agnostic command core: a command has a name, a
// description and Run(ctx, invocation). Registration and dispatch for a
// transport (Discord slash commands here) live in adapters that wrap it.
package cmd

import "context"

// Invocation carries what any runner can pass: arguments and an opaque
// payload. Adapters set Data to their own context type.
type Invocation struct {
	Args []string
	Data any
}

type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
