package menu

import (
	"context"
	"errors"
)

// ErrNoPrompter is returned by Ask when the click came from a surface that
// can't ask the user anything.
var ErrNoPrompter = errors.New("no prompter available")

// ErrCancelled is returned by a Prompter when the user dismisses it.
var ErrCancelled = errors.New("prompt cancelled")

// Prompter asks the user for a line of text on behalf of a click action.
type Prompter interface {
	Prompt(ctx context.Context, message, defaultValue string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, message, defaultValue string) (string, error)

func (f PrompterFunc) Prompt(ctx context.Context, message, defaultValue string) (string, error) {
	return f(ctx, message, defaultValue)
}

// Answer is a Prompter that returns a value collected up front, as the web
// API does.
type Answer string

func (a Answer) Prompt(context.Context, string, string) (string, error) {
	return string(a), nil
}

type prompterKey struct{}

// WithPrompter attaches p to ctx for click actions.
func WithPrompter(ctx context.Context, p Prompter) context.Context {
	return context.WithValue(ctx, prompterKey{}, p)
}

// Ask prompts through the Prompter attached to ctx.
func Ask(ctx context.Context, message, defaultValue string) (string, error) {
	p, ok := ctx.Value(prompterKey{}).(Prompter)
	if !ok || p == nil {
		return "", ErrNoPrompter
	}
	return p.Prompt(ctx, message, defaultValue)
}
