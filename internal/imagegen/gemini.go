package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const rewriteInstruction = `You write prompts for an image model. Given a short sentence, describe a
single vivid scene that depicts it. Do not quote the sentence and do not put any
text, letters or captions in the scene. Answer with one paragraph under 60 words.`

// GeminiRewriter expands a sentence into a richer scene description.
type GeminiRewriter struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiRewriter(ctx context.Context, apiKey, modelName string) (*GeminiRewriter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(rewriteInstruction)}}
	model.SetTemperature(0.7)

	return &GeminiRewriter{client: client, model: model}, nil
}

func (g *GeminiRewriter) Rewrite(ctx context.Context, scene string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(scene))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", &Error{Kind: KindSafety, Provider: "gemini", Err: err}
		}
		return "", &Error{Kind: KindOf(err), Provider: "gemini", Err: err}
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", &Error{Kind: KindUnknown, Provider: "gemini", Err: errors.New("empty rewrite")}
	}
	return text, nil
}

func (g *GeminiRewriter) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text string
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text += string(txt)
			}
		}
	}
	return text
}
