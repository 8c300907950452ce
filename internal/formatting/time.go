package formatting

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// FormatDateTime форматирует дату и время
func FormatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

// FormatDate форматирует только дату
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

// FormatTimeRange форматирует диапазон времени
func FormatTimeRange(start, end time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("15:04"), end.Format("15:04"))
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}

// FormatLocation человекочитаемый формат занятия
func FormatLocation(l model.Location) string {
	switch l {
	case model.LocationOnline:
		return "online"
	case model.LocationInPerson:
		return "in person"
	default:
		return string(l)
	}
}

// DescribeSlot краткое описание слота для уведомлений:
// "Physics (Tutoring), 19.10.2026 09:00-10:00, online"
func DescribeSlot(s *model.Slot) string {
	title := s.Subject
	if title == "" {
		title = "Session"
	}
	if s.SessionType != "" {
		title = fmt.Sprintf("%s (%s)", title, s.SessionType)
	}
	return fmt.Sprintf("%s, %s %s, %s",
		title,
		FormatDate(s.StartTime),
		FormatTimeRange(s.StartTime, s.EndTime),
		FormatLocation(s.Location),
	)
}
