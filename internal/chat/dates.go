package chat

import "time"

// The effective day has a 2 AM cutover: timestamps between midnight and
// 2 AM belong to the previous calendar day, so late-night entries group
// with "today" rather than "tomorrow".

func effectiveTime(t time.Time) time.Time {
	if t.Hour() < 2 {
		return t.Add(-24 * time.Hour)
	}
	return t
}

// EffectiveDate returns the effective calendar day of t, e.g. "2026/8/31".
func EffectiveDate(t time.Time) string {
	return effectiveTime(t).Format("2006/1/2")
}

func effectiveDateOfMillis(ms int64) string {
	return EffectiveDate(time.UnixMilli(ms))
}

// formatDateTime renders a title timestamp like "2026/8/31 23:42".
func formatDateTime(t time.Time) string {
	return t.Format("2006/1/2 15:04")
}
