package record

import (
	"fmt"

	"diaryface/internal/model"
)

// Reminder layout:
//   - u8 index
//   - [21]byte title
//   - u8 completed
//   - u8 has_due_date
//   - [19]byte due_date
const (
	ReminderSize     = 43
	ReminderTitleLen = 21
	ReminderDueLen   = 19

	remTitle     = 1
	remCompleted = 22
	remHasDue    = 23
	remDue       = 24
)

// ReminderList layout:
//   - u8 index
//   - [21]byte title
const (
	ReminderListSize     = 22
	ReminderListTitleLen = 21
)

func DecodeReminder(b []byte) (model.Reminder, error) {
	if len(b) < ReminderSize {
		return model.Reminder{}, fmt.Errorf("%w: reminder needs %d bytes, got %d", ErrMalformed, ReminderSize, len(b))
	}
	return model.Reminder{
		Index:      b[0],
		Title:      getString(b[remTitle : remTitle+ReminderTitleLen]),
		Completed:  getBool(b[remCompleted]),
		HasDueDate: getBool(b[remHasDue]),
		DueDate:    getString(b[remDue : remDue+ReminderDueLen]),
	}, nil
}

func EncodeReminder(r model.Reminder) []byte {
	buf := make([]byte, ReminderSize)
	buf[0] = r.Index
	putString(buf[remTitle:remTitle+ReminderTitleLen], r.Title)
	buf[remCompleted] = putBool(r.Completed)
	buf[remHasDue] = putBool(r.HasDueDate)
	putString(buf[remDue:remDue+ReminderDueLen], r.DueDate)
	return buf
}

func DecodeReminderList(b []byte) (model.ReminderList, error) {
	if len(b) < ReminderListSize {
		return model.ReminderList{}, fmt.Errorf("%w: reminder list needs %d bytes, got %d", ErrMalformed, ReminderListSize, len(b))
	}
	return model.ReminderList{
		Index: b[0],
		Title: getString(b[1 : 1+ReminderListTitleLen]),
	}, nil
}

func EncodeReminderList(l model.ReminderList) []byte {
	buf := make([]byte, ReminderListSize)
	buf[0] = l.Index
	putString(buf[1:1+ReminderListTitleLen], l.Title)
	return buf
}
