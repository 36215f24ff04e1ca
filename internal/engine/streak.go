package engine

import (
	"time"

	"github.com/mmeshcher/impact-portal/internal/model"
)

// RecordActivity продлевает или сбрасывает серию активности.
// Границы дней определяются локальным календарём сервера, а не скользящим окном в 24 часа.
// Тот же день ничего не меняет, следующий день продлевает серию, пропуск дня сбрасывает её до 1.
// Событие, датированное днём раньше последней активности, игнорируется.
func RecordActivity(progress model.UserProgress, at time.Time) model.UserProgress {
	day := calendarDay(at)

	if progress.LastActivityDate == nil {
		progress.CurrentStreak = 1
	} else {
		last := calendarDay(*progress.LastActivityDate)
		switch {
		case !day.After(last):
			return progress
		case last.AddDate(0, 0, 1).Equal(day):
			progress.CurrentStreak++
		default:
			progress.CurrentStreak = 1
		}
	}

	progress.LastActivityDate = &at
	if progress.CurrentStreak > progress.LongestStreak {
		progress.LongestStreak = progress.CurrentStreak
	}
	return progress
}

func calendarDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
