// Package identity resolves presentation details for user ids.
package identity

import (
	"context"
	"fmt"

	supa "github.com/supabase-community/supabase-go"

	"phrasehunt/internal/models"
)

type Directory interface {
	DisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error)
}

// Fallback echoes the user id as the display name.
type Fallback struct{}

func (Fallback) DisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error) {
	return &models.DisplayInfo{DisplayName: userID}, nil
}

type profileRow struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// SupabaseDirectory reads profiles through PostgREST.
type SupabaseDirectory struct {
	client *supa.Client
	table  string
}

func NewSupabaseDirectory(client *supa.Client, table string) *SupabaseDirectory {
	return &SupabaseDirectory{client: client, table: table}
}

func (d *SupabaseDirectory) DisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error) {
	var rows []profileRow
	_, err := d.client.From(d.table).
		Select("display_name,avatar_url", "", false).
		Eq("id", userID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	info := &models.DisplayInfo{DisplayName: userID}
	if len(rows) == 0 {
		return info, nil
	}
	if rows[0].DisplayName != nil && *rows[0].DisplayName != "" {
		info.DisplayName = *rows[0].DisplayName
	}
	info.ProfileImageURL = rows[0].AvatarURL
	return info, nil
}
