package model

import "time"

// EventVariant selects one of the two mutually exclusive event record layouts.
// It is fixed by configuration, never per message.
type EventVariant uint8

const (
	VariantExtended EventVariant = iota + 1
	VariantColored
)

func (v EventVariant) String() string {
	switch v {
	case VariantExtended:
		return "extended"
	case VariantColored:
		return "colored"
	default:
		return "unknown"
	}
}

// RGB is an explicit calendar color carried by the colored variant.
type RGB [3]uint8

// Event is one calendar entry as the device sees it. Variant tells which
// physical layout it came from; HasColor/Color are only meaningful for
// VariantColored.
type Event struct {
	Variant EventVariant

	Index       uint8
	Title       string
	HasLocation bool
	Location    string
	AllDay      bool

	Start time.Time
	End   time.Time

	// Alarms are offsets in seconds relative to Start.
	Alarms [2]int32

	HasColor bool
	Color    RGB
}

// EventTitle, StartTime and EndTime form the surface the countdown formatter
// consumes regardless of variant.
func (e Event) EventTitle() string   { return e.Title }
func (e Event) StartTime() time.Time { return e.Start }
func (e Event) EndTime() time.Time   { return e.End }

// Reminder is one to-do entry.
type Reminder struct {
	Index      uint8
	Title      string
	Completed  bool
	HasDueDate bool
	DueDate    string
}

// ReminderList names one group of reminders.
type ReminderList struct {
	Index uint8
	Title string
}

// BatteryLevelUnknown marks a BatteryStatus that has not been read yet.
const BatteryLevelUnknown int8 = 113

// Battery charge states.
const (
	BatteryDischarging uint8 = iota
	BatteryCharging
	BatteryPlugged
)

type BatteryStatus struct {
	State uint8
	Level int8
}

// Known reports whether the status holds a real reading.
func (b BatteryStatus) Known() bool { return b.Level != BatteryLevelUnknown }

// UnknownBattery is the initial status before any reading.
func UnknownBattery() BatteryStatus {
	return BatteryStatus{Level: BatteryLevelUnknown}
}

// ConfigData holds the persisted display toggles.
type ConfigData struct {
	Invert    bool `yaml:"invert" toml:"invert" json:"invert"`
	Animate   bool `yaml:"animate" toml:"animate" json:"animate"`
	DayName   bool `yaml:"day_name" toml:"day_name" json:"day_name"`
	MonthName bool `yaml:"month_name" toml:"month_name" json:"month_name"`
	WeekNo    bool `yaml:"week_no" toml:"week_no" json:"week_no"`
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time

	// Alarms are VALARM trigger offsets relative to Start, in seconds.
	Alarms []int32
}

// Todo is a VTODO entry from a calendar source.
type Todo struct {
	SourceID  string
	UID       string
	Summary   string
	Completed bool
	Due       *time.Time
}
