package views

import (
	"math"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// Count is a task count with its rounded share of the total.
type Count struct {
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

// Stats summarizes a task list.
type Stats struct {
	Total     int   `json:"total"`
	Pending   Count `json:"pending"`
	Completed Count `json:"completed"`
	Overdue   Count `json:"overdue"`
}

// DayProgress counts the tasks due on one day of the week.
type DayProgress struct {
	Day       string    `json:"day"`
	Date      time.Time `json:"date"`
	Completed int       `json:"completed"`
	Pending   int       `json:"pending"`
}

// IsOverdue reports whether a task is not completed and due before today.
func IsOverdue(t backend.Task, today time.Time) bool {
	if t.Status == backend.StatusCompleted || t.DueDate == nil {
		return false
	}
	return utils.CalendarDay(*t.DueDate).Before(utils.CalendarDay(today))
}

// ComputeStats counts pending, completed and overdue tasks as of now.
func ComputeStats(tasks []backend.Task, now time.Time) Stats {
	var pending, completed, overdue int
	for _, t := range tasks {
		if t.Status == backend.StatusCompleted {
			completed++
		} else {
			pending++
		}
		if IsOverdue(t, now) {
			overdue++
		}
	}

	total := len(tasks)
	return Stats{
		Total:     total,
		Pending:   Count{Count: pending, Percentage: percent(pending, total)},
		Completed: Count{Count: completed, Percentage: percent(completed, total)},
		Overdue:   Count{Count: overdue, Percentage: percent(overdue, total)},
	}
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}

// WeeklyProgress returns seven entries, Sunday through Saturday of the week
// containing today, counting the tasks due on each day.
func WeeklyProgress(tasks []backend.Task, today time.Time) []DayProgress {
	today = utils.CalendarDay(today)
	sunday := today.AddDate(0, 0, -int(today.Weekday()))

	week := make([]DayProgress, 7)
	index := make(map[string]int, 7)
	for i := range week {
		d := sunday.AddDate(0, 0, i)
		week[i] = DayProgress{Day: d.Weekday().String()[:3], Date: d}
		index[d.Format(backend.DateFormat)] = i
	}

	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		i, ok := index[utils.CalendarDay(*t.DueDate).Format(backend.DateFormat)]
		if !ok {
			continue
		}
		if t.Status == backend.StatusCompleted {
			week[i].Completed++
		} else {
			week[i].Pending++
		}
	}
	return week
}
