package proto

import "diaryface/internal/model"

// Settings is the payload of a settings response.
type Settings struct {
	Config  model.ConfigData
	Clock12 bool
}

// SettingsDict builds a settings response.
//
// Shape: {28: u8 1, 2: u8 clock style (1 = 12h), 200..204: u8 toggles}
func SettingsDict(s Settings) Dict {
	c := s.Config
	return Dict{
		Uint8(KeySettingsResponse, 1),
		Bool(KeyClockStyle, s.Clock12),
		Bool(KeySettingInvert, c.Invert),
		Bool(KeySettingAnimate, c.Animate),
		Bool(KeySettingDayName, c.DayName),
		Bool(KeySettingMonthName, c.MonthName),
		Bool(KeySettingWeekNo, c.WeekNo),
	}
}

// ParseSettings reads a settings response. Missing toggles keep the values
// in base; ok is false when d is not a settings response.
func ParseSettings(d Dict, base Settings) (s Settings, ok bool, err error) {
	if !d.Has(KeySettingsResponse) {
		return base, false, nil
	}
	s = base
	fields := []struct {
		key Key
		dst *bool
	}{
		{KeyClockStyle, &s.Clock12},
		{KeySettingInvert, &s.Config.Invert},
		{KeySettingAnimate, &s.Config.Animate},
		{KeySettingDayName, &s.Config.DayName},
		{KeySettingMonthName, &s.Config.MonthName},
		{KeySettingWeekNo, &s.Config.WeekNo},
	}
	for _, f := range fields {
		t, found := d.Find(f.key)
		if !found {
			continue
		}
		v, err := t.AsUint()
		if err != nil {
			return base, true, err
		}
		*f.dst = v != 0
	}
	return s, true, nil
}
