package imagegen

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// PromptRewriter turns scene text into a richer rendering prompt.
type PromptRewriter interface {
	Rewrite(ctx context.Context, scene string) (string, error)
}

// Mirror re-hosts a generated image and returns the new URL.
type Mirror interface {
	Store(ctx context.Context, sourceURL string) (string, error)
}

// Pipeline rewrites the scene (optional), renders it and mirrors the result
// (optional). Rewrite and mirror failures degrade gracefully, except a
// safety block on the rewrite, which would also block the render.
type Pipeline struct {
	renderer Generator
	rewriter PromptRewriter
	mirror   Mirror
	log      *logrus.Entry
}

func NewPipeline(renderer Generator, rewriter PromptRewriter, mirror Mirror, log *logrus.Entry) *Pipeline {
	return &Pipeline{renderer: renderer, rewriter: rewriter, mirror: mirror, log: log}
}

func (p *Pipeline) Generate(ctx context.Context, scene string) (string, error) {
	description := scene
	if p.rewriter != nil {
		rewritten, err := p.rewriter.Rewrite(ctx, scene)
		switch {
		case err == nil:
			description = rewritten
		case KindOf(err) == KindSafety:
			return "", err
		default:
			p.log.WithError(err).Warn("prompt rewrite failed, using sentence as is")
		}
	}

	url, err := p.renderer.Generate(ctx, ScenePrompt(description))
	if err != nil {
		return "", err
	}

	if p.mirror != nil {
		mirrored, err := p.mirror.Store(ctx, url)
		if err != nil {
			p.log.WithError(err).WithField("source_url", url).Warn("image mirror failed, keeping provider url")
			return url, nil
		}
		return mirrored, nil
	}
	return url, nil
}

// Disabled fails every request. Used when no renderer is configured.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt string) (string, error) {
	return "", &Error{Kind: KindAuth, Provider: "none", Err: errors.New("image generation is not configured")}
}
