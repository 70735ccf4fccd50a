package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"diaryface/internal/log"
	"diaryface/internal/model"
	"diaryface/internal/proto"
)

// MinMessageBytes is the smallest link bound that still fits one tagged
// event chunk.
var MinMessageBytes = proto.ResponseOverhead(true) + 1 + 104

// Validate checks configuration correctness.
//
// Validate MUST NOT mutate configuration. Callers normalize first.
func Validate(c *Config) error {
	if c == nil {
		return ErrNilConfig
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}

	for name, spec := range map[string]string{
		"tick":    c.TickCron,
		"refresh": c.RefreshCron,
		"battery": c.BatteryCron,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s schedule %q: %w", name, spec, err)
		}
	}

	f, ok := proto.ParseResponseFormat(c.ResponseFormat)
	if !ok {
		return fmt.Errorf("response_format %q: must be extended or colored", c.ResponseFormat)
	}
	if f == proto.FormatLegacy {
		return errors.New("response_format legacy is no longer produced")
	}

	if c.TitleMax < 1 || c.TitleMax > 40 {
		return fmt.Errorf("title_max %d: must be in 1..40", c.TitleMax)
	}
	if c.NotifyMinutes > 60 {
		return fmt.Errorf("notify_minutes %d: must be at most 60", c.NotifyMinutes)
	}
	if c.MaxMessageBytes < MinMessageBytes {
		return fmt.Errorf("max_message_bytes %d: must be at least %d", c.MaxMessageBytes, MinMessageBytes)
	}
	if c.ReminderList < -1 || c.ReminderList > 127 {
		return fmt.Errorf("reminder_list %d: must be -1 or a list index", c.ReminderList)
	}
	if c.ReminderList >= len(c.ICS) && c.ReminderList != -1 {
		return fmt.Errorf("reminder_list %d: only %d sources configured", c.ReminderList, len(c.ICS))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.ICS))
	for i, s := range c.ICS {
		if s.ID == "" {
			return fmt.Errorf("ics[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("ics[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("ics[%d] %s: url is required", i, s.ID)
		}
		if s.Color != "" {
			if _, err := ParseColor(s.Color); err != nil {
				return fmt.Errorf("ics[%d] %s: %w", i, s.ID, err)
			}
		}
	}

	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth: username is required")
	}
	return nil
}

// ParseColor parses "#rrggbb".
func ParseColor(s string) (model.RGB, error) {
	var rgb model.RGB
	h, ok := strings.CutPrefix(s, "#")
	if !ok || len(h) != 6 {
		return rgb, fmt.Errorf("color %q: want #rrggbb", s)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return rgb, fmt.Errorf("color %q: %w", s, err)
	}
	copy(rgb[:], b)
	return rgb, nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Format returns the configured response format. Call after Validate.
func (c *Config) Format() proto.ResponseFormat {
	f, _ := proto.ParseResponseFormat(c.ResponseFormat)
	return f
}

// Colors maps source IDs to their parsed colors. Invalid colors are skipped.
func (c *Config) Colors() map[string]model.RGB {
	out := make(map[string]model.RGB, len(c.ICS))
	for _, s := range c.ICS {
		if s.Color == "" {
			continue
		}
		if rgb, err := ParseColor(s.Color); err == nil {
			out[s.ID] = rgb
		}
	}
	return out
}
