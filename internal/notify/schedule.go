package notify

import (
	"time"
	_ "time/tzdata"

	"DocketWatch/internal/domain"
)

// Schedule holds the local send times for daily and weekly digests.
type Schedule struct {
	Location   *time.Location
	DailyHour  int
	WeeklyDay  time.Weekday
	WeeklyHour int
}

// DefaultSchedule is 13:00 daily and Monday 09:00 weekly in America/New_York.
func DefaultSchedule() Schedule {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Schedule{Location: loc, DailyHour: 13, WeeklyDay: time.Monday, WeeklyHour: 9}
}

// NextSendTime returns when an item of the given digest type enqueued at now
// should be delivered. A send time equal to now counts as not yet passed.
func NextSendTime(digest domain.DigestType, now time.Time, s Schedule) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()

	switch digest {
	case domain.DigestDaily:
		next := time.Date(y, m, d, s.DailyHour, 0, 0, 0, loc)
		if next.Before(local) {
			next = time.Date(y, m, d+1, s.DailyHour, 0, 0, 0, loc)
		}
		return next
	case domain.DigestWeekly:
		ahead := (int(s.WeeklyDay) - int(local.Weekday()) + 7) % 7
		next := time.Date(y, m, d+ahead, s.WeeklyHour, 0, 0, 0, loc)
		if next.Before(local) {
			next = time.Date(y, m, d+ahead+7, s.WeeklyHour, 0, 0, 0, loc)
		}
		return next
	default:
		return now
	}
}
