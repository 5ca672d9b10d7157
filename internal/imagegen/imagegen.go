// Package imagegen turns text prompts into hosted image URLs.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind categorizes generation failures.
type Kind string

const (
	KindAuth    Kind = "auth"
	KindQuota   Kind = "quota"
	KindTimeout Kind = "timeout"
	KindSafety  Kind = "safety"
	KindUnknown Kind = "unknown"
)

type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s image generation failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, classifying untyped errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Generator renders a prompt and returns a URL for the image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ScenePrompt wraps scene text in the house rendering instructions.
func ScenePrompt(scene string) string {
	return fmt.Sprintf("A realistic, high-quality image representing: %s. Make it clear and visually appealing.", scene)
}
