package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	supa "github.com/supabase-community/supabase-go"
)

const maxImageBytes = 20 << 20

// SupabaseMirror copies provider-hosted images into a Supabase Storage bucket
// so challenge URLs outlive the provider's retention.
type SupabaseMirror struct {
	client *supa.Client
	bucket string
	http   *http.Client
}

func NewSupabaseMirror(client *supa.Client, bucket string, httpClient *http.Client) *SupabaseMirror {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SupabaseMirror{client: client, bucket: bucket, http: httpClient}
}

func (m *SupabaseMirror) Store(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	objectPath := "challenges/" + uuid.NewString() + extension(sourceURL, resp.Header.Get("Content-Type"))
	if _, err := m.client.Storage.UploadFile(m.bucket, objectPath, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return m.client.Storage.GetPublicUrl(m.bucket, objectPath).SignedURL, nil
}

func extension(sourceURL, contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	}
	if ext := path.Ext(strings.SplitN(sourceURL, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}
