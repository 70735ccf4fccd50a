package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"diaryface/internal/log"
	"diaryface/internal/model"
)

// SettingsKey names the persisted display toggles.
const SettingsKey = 12434

// settingsBlobLen is one byte per toggle.
const settingsBlobLen = 5

// SettingsStore persists the display toggles as a fixed-size blob under
// a state directory.
type SettingsStore struct {
	mu  sync.Mutex
	dir string
}

func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{dir: dir}
}

// Path is the blob location.
func (s *SettingsStore) Path() string {
	return filepath.Join(s.dir, fmt.Sprintf("persist-%d.bin", SettingsKey))
}

// LoadSettings returns the stored toggles. A missing or malformed blob
// yields def and ok=false.
func (s *SettingsStore) LoadSettings(def model.ConfigData) (cfg model.ConfigData, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return def, false, nil
		}
		return def, false, err
	}
	cfg, ok = decodeSettings(b)
	if !ok {
		log.Warn("config: ignoring malformed settings blob", "path", s.Path(), "size", len(b))
		return def, false, nil
	}
	return cfg, true, nil
}

// SaveSettings writes the toggles atomically.
func (s *SettingsStore) SaveSettings(cfg model.ConfigData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.Path(), encodeSettings(cfg))
}

func encodeSettings(c model.ConfigData) []byte {
	return []byte{b2u(c.Invert), b2u(c.Animate), b2u(c.DayName), b2u(c.MonthName), b2u(c.WeekNo)}
}

func decodeSettings(b []byte) (model.ConfigData, bool) {
	if len(b) != settingsBlobLen {
		return model.ConfigData{}, false
	}
	return model.ConfigData{
		Invert:    b[0] != 0,
		Animate:   b[1] != 0,
		DayName:   b[2] != 0,
		MonthName: b[3] != 0,
		WeekNo:    b[4] != 0,
	}, true
}

func b2u(v bool) byte {
	if v {
		return 1
	}
	return 0
}
