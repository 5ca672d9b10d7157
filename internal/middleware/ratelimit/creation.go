package ratelimit

import (
	"context"
	"time"
)

const (
	ActionCreationMinute = "challenge-creation-minute"
	ActionCreationDay    = "challenge-creation-day"
)

// CreationQuota reports whether a user may create another challenge.
type CreationQuota struct {
	Allowed         bool
	Reason          string
	MinuteRemaining int
	DayRemaining    int
	ResetTime       time.Time
}

// CreationPolicy applies the per-minute and per-day creation windows.
// Both must pass; the day window is only consulted once the minute window admits.
type CreationPolicy struct {
	limiter   Limiter
	perMinute int
	perDay    int
}

func NewCreationPolicy(limiter Limiter, perMinute, perDay int) *CreationPolicy {
	return &CreationPolicy{limiter: limiter, perMinute: perMinute, perDay: perDay}
}

func (p *CreationPolicy) Allow(ctx context.Context, userID string) CreationQuota {
	minute := p.limiter.Check(ctx, ActionCreationMinute, userID, time.Minute, p.perMinute)
	if !minute.Allowed {
		return CreationQuota{
			Allowed:         false,
			Reason:          "Too many challenges created recently. Please wait a minute before creating another.",
			MinuteRemaining: minute.Remaining,
			ResetTime:       minute.ResetTime,
		}
	}

	day := p.limiter.Check(ctx, ActionCreationDay, userID, 24*time.Hour, p.perDay)
	if !day.Allowed {
		return CreationQuota{
			Allowed:         false,
			Reason:          "Daily challenge creation limit reached.",
			MinuteRemaining: minute.Remaining,
			DayRemaining:    day.Remaining,
			ResetTime:       day.ResetTime,
		}
	}

	return CreationQuota{
		Allowed:         true,
		MinuteRemaining: minute.Remaining,
		DayRemaining:    day.Remaining,
		ResetTime:       minute.ResetTime,
	}
}
