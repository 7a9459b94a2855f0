package grant

import (
	"strings"
	"time"
)

// Layouts accepted for AbsoluteDate. The first matches an HTML
// datetime-local input.
var absoluteLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// ExpirySpec describes how a grant's expiry is chosen. It is implemented only
// by Duration and AbsoluteDate.
type ExpirySpec interface {
	expiresAt(now time.Time, loc *time.Location) (time.Time, error)
}

// Duration is a relative expiry. All fields must be non-negative.
type Duration struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (d Duration) expiresAt(now time.Time, loc *time.Location) (time.Time, error) {
	if d.Days < 0 {
		return time.Time{}, invalid("duration", "days must not be negative")
	}
	if d.Hours < 0 {
		return time.Time{}, invalid("duration", "hours must not be negative")
	}
	if d.Minutes < 0 {
		return time.Time{}, invalid("duration", "minutes must not be negative")
	}

	// Days are calendar days in the site's zone, so a DST switch inside the
	// window does not shift the wall-clock expiry.
	local := now.In(loc).AddDate(0, 0, d.Days)
	local = local.Add(time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute)
	return local.UTC(), nil
}

// AbsoluteDate is a local date-time string interpreted in the site's zone.
type AbsoluteDate string

func (a AbsoluteDate) expiresAt(_ time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return time.Time{}, invalid("expires_at", "date is empty")
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("expires_at", "%q is not a date-time of the form YYYY-MM-DDTHH:MM", s)
}

// ComputeExpiry converts spec into an absolute UTC expiry. now is the issuing
// instant and loc the site's configured time zone.
func ComputeExpiry(spec ExpirySpec, now time.Time, loc *time.Location) (time.Time, error) {
	if spec == nil {
		return time.Time{}, invalid("expiry", "no duration or date given")
	}
	if loc == nil {
		return time.Time{}, invalid("timezone", "site time zone is not set")
	}
	return spec.expiresAt(now, loc)
}
