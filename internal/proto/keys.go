package proto

// Key identifies a tuple inside a message dictionary. Values are stable
// across releases; the peer uses the same numbering.
type Key uint32

const (
	KeyReconnect              Key = 0
	KeyRequestCalendar        Key = 1
	KeyClockStyle             Key = 2
	KeyCalendarResponse       Key = 3
	KeyRequestBattery         Key = 8
	KeyBatteryResponse        Key = 9
	KeyRequestReminders       Key = 18
	KeyRemindersResponse      Key = 19
	KeyReminderChange         Key = 20
	KeyRequestSettings        Key = 27
	KeySettingsResponse       Key = 28
	KeyCalendarResponseFormat Key = 36
	KeyRequestReminderLists   Key = 37
	KeyReminderListsResponse  Key = 38
	KeyReminderListIndex      Key = 39
	KeyGeneration             Key = 40

	KeySettingInvert    Key = 200
	KeySettingAnimate   Key = 201
	KeySettingDayName   Key = 202
	KeySettingMonthName Key = 203
	KeySettingWeekNo    Key = 204
)

func (k Key) String() string {
	switch k {
	case KeyReconnect:
		return "reconnect"
	case KeyRequestCalendar:
		return "request_calendar"
	case KeyClockStyle:
		return "clock_style"
	case KeyCalendarResponse:
		return "calendar_response"
	case KeyRequestBattery:
		return "request_battery"
	case KeyBatteryResponse:
		return "battery_response"
	case KeyRequestReminders:
		return "request_reminders"
	case KeyRemindersResponse:
		return "reminders_response"
	case KeyReminderChange:
		return "reminder_change"
	case KeyRequestSettings:
		return "request_settings"
	case KeySettingsResponse:
		return "settings_response"
	case KeyCalendarResponseFormat:
		return "calendar_response_format"
	case KeyRequestReminderLists:
		return "request_reminder_lists"
	case KeyReminderListsResponse:
		return "reminder_lists_response"
	case KeyReminderListIndex:
		return "reminder_list_index"
	case KeyGeneration:
		return "generation"
	case KeySettingInvert:
		return "setting_invert"
	case KeySettingAnimate:
		return "setting_animate"
	case KeySettingDayName:
		return "setting_day_name"
	case KeySettingMonthName:
		return "setting_month_name"
	case KeySettingWeekNo:
		return "setting_week_no"
	default:
		return "unknown"
	}
}

// AllReminders asks for reminders across every list.
const AllReminders int8 = -1

// ResponseFormat selects the event record layout the peer must answer with.
type ResponseFormat uint8

const (
	FormatLegacy   ResponseFormat = 1
	FormatExtended ResponseFormat = 2
	FormatColored  ResponseFormat = 3
)

func (f ResponseFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatExtended:
		return "extended"
	case FormatColored:
		return "colored"
	default:
		return "unknown"
	}
}

// ParseResponseFormat maps a config name onto a ResponseFormat.
func ParseResponseFormat(s string) (ResponseFormat, bool) {
	switch s {
	case "legacy":
		return FormatLegacy, true
	case "extended":
		return FormatExtended, true
	case "colored":
		return FormatColored, true
	default:
		return 0, false
	}
}
