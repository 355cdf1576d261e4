package model

import (
	"fmt"
	"strings"
	"time"
)

// Well-known runtime setting keys.
const (
	SettingFrontendURL = "FRONTEND_URL"
)

// PriceSettingKey is the settings key holding the processor price id for a
// plan and billing cycle, e.g. STRIPE_PRO_MONTHLY_PRICE_ID.
func PriceSettingKey(plan string, cycle BillingCycle) string {
	return fmt.Sprintf("STRIPE_%s_%s_PRICE_ID", strings.ToUpper(strings.TrimSpace(plan)), strings.ToUpper(string(cycle)))
}

// AppSetting is one persisted key/value runtime setting.
type AppSetting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SettingsSnapshot is an immutable view of the runtime settings taken at
// LoadedAt. Readers share a snapshot and never mutate it.
type SettingsSnapshot struct {
	values   map[string]string
	LoadedAt time.Time
	Version  int64
}

func NewSettingsSnapshot(entries []*AppSetting, version int64, at time.Time) *SettingsSnapshot {
	values := make(map[string]string, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		values[e.Key] = e.Value
	}
	return &SettingsSnapshot{values: values, LoadedAt: at, Version: version}
}

func (s *SettingsSnapshot) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok && v != ""
}

func (s *SettingsSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// All returns a copy of the snapshot contents.
func (s *SettingsSnapshot) All() map[string]string {
	out := make(map[string]string, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
