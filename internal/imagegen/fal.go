package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type falRequest struct {
	Prompt              string `json:"prompt"`
	ImageSize           string `json:"image_size"`
	NumInferenceSteps   int    `json:"num_inference_steps"`
	NumImages           int    `json:"num_images"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
}

type falResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	HasNSFWConcepts []bool `json:"has_nsfw_concepts"`
}

// FalClient calls the synchronous fal.ai REST endpoint for a model.
type FalClient struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

func NewFalClient(baseURL, model, apiKey string, httpClient *http.Client) *FalClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

func (c *FalClient) fail(kind Kind, err error) error {
	return &Error{Kind: kind, Provider: "fal", Err: err}
}

func (c *FalClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(falRequest{
		Prompt:              prompt,
		ImageSize:           "landscape_4_3",
		NumInferenceSteps:   4,
		NumImages:           1,
		EnableSafetyChecker: true,
	})
	if err != nil {
		return "", c.fail(KindUnknown, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.model, bytes.NewReader(body))
	if err != nil {
		return "", c.fail(KindUnknown, err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", c.fail(KindTimeout, err)
		}
		return "", c.fail(KindUnknown, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return "", c.fail(KindTimeout, err)
		}
		return "", c.fail(KindUnknown, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.fail(classifyStatus(resp.StatusCode, raw),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out falResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", c.fail(KindUnknown, fmt.Errorf("decode response: %w", err))
	}
	for _, flagged := range out.HasNSFWConcepts {
		if flagged {
			return "", c.fail(KindSafety, errors.New("image rejected by safety checker"))
		}
	}
	if len(out.Images) == 0 || out.Images[0].URL == "" {
		return "", c.fail(KindUnknown, errors.New("no image in response"))
	}
	return out.Images[0].URL, nil
}

func classifyStatus(status int, body []byte) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusUnprocessableEntity && isSafetyMessage(body):
		return KindSafety
	default:
		return KindUnknown
	}
}

func isSafetyMessage(body []byte) bool {
	msg := strings.ToLower(string(body))
	return strings.Contains(msg, "nsfw") || strings.Contains(msg, "safety") || strings.Contains(msg, "content policy")
}
