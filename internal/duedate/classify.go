// Package duedate places a client's due date into a reporting window
// relative to the current civil date.
package duedate

import (
	"time"

	"github.com/jmehdipour/duebot/internal/model"
)

// SoonWindow is the inclusive upper bound, in days, of the due-soon bucket.
const SoonWindow = 7

type Bucket int

const (
	Ignored Bucket = iota
	Overdue
	DueToday
	DueSoon
)

func (b Bucket) String() string {
	switch b {
	case Overdue:
		return "overdue"
	case DueToday:
		return "due_today"
	case DueSoon:
		return "due_soon"
	default:
		return "ignored"
	}
}

// DaysBetween returns the number of civil days from today to due. Only the
// year, month and day of each value are used, each in its own location.
func DaysBetween(today, due time.Time) int {
	a := civil(today)
	b := civil(due)
	return int((b.Unix() - a.Unix()) / 86400)
}

// Classify is total: every (today, due) pair maps to exactly one bucket.
func Classify(today, due time.Time) Bucket {
	delta := DaysBetween(today, due)
	switch {
	case delta < 0:
		return Overdue
	case delta == 0:
		return DueToday
	case delta <= SoonWindow:
		return DueSoon
	default:
		return Ignored
	}
}

// Entry is a client placed in a bucket together with its day delta.
type Entry struct {
	Client model.Client
	Days   int // negative when overdue
}

type Buckets struct {
	Overdue  []Entry
	DueToday []Entry
	DueSoon  []Entry
}

// Empty reports whether no client fell in a reported bucket.
func (b Buckets) Empty() bool {
	return len(b.Overdue) == 0 && len(b.DueToday) == 0 && len(b.DueSoon) == 0
}

// Partition groups clients by bucket, preserving input order inside each one.
// Clients in the ignored window are dropped.
func Partition(today time.Time, clients []model.Client) Buckets {
	var out Buckets
	for _, c := range clients {
		e := Entry{Client: c, Days: DaysBetween(today, c.DueDate)}
		switch Classify(today, c.DueDate) {
		case Overdue:
			out.Overdue = append(out.Overdue, e)
		case DueToday:
			out.DueToday = append(out.DueToday, e)
		case DueSoon:
			out.DueSoon = append(out.DueSoon, e)
		}
	}
	return out
}

// civil maps t to midnight UTC of its calendar date so day arithmetic is
// immune to DST shifts.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
