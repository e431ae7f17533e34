package sessionguard

import (
	"strings"
	"time"
)

// Moderated reports whether the snapshot carries an explicit moderation
// action. Typed fields win; raw document keys cover deployments with their
// own flag names.
func (s RecordSnapshot) Moderated() bool {
	if s.IsBanned || s.IsSuspended {
		return true
	}
	switch strings.ToLower(s.Status) {
	case "suspended", "banned":
		return true
	}
	return boolField(s.Fields, "is_banned", "isBanned", "is_suspended", "isSuspended")
}

// SoftDeleted reports whether the snapshot carries a soft-delete marker.
func (s RecordSnapshot) SoftDeleted() bool {
	if s.DeletedAt != nil && !s.DeletedAt.IsZero() {
		return true
	}
	if strings.EqualFold(s.Status, "deleted") {
		return true
	}
	if timeField(s.Fields, "deleted_at", "deletedAt") {
		return true
	}
	return boolField(s.Fields, "is_deleted", "isDeleted")
}

func boolField(fields map[string]any, keys ...string) bool {
	if fields == nil {
		return false
	}
	for _, key := range keys {
		if raw, ok := fields[key]; ok {
			if val, ok := raw.(bool); ok && val {
				return true
			}
		}
	}
	return false
}

func timeField(fields map[string]any, keys ...string) bool {
	if fields == nil {
		return false
	}
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		switch val := raw.(type) {
		case time.Time:
			if !val.IsZero() {
				return true
			}
		case *time.Time:
			if val != nil && !val.IsZero() {
				return true
			}
		case string:
			if val != "" {
				return true
			}
		}
	}
	return false
}
