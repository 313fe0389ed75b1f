/*
calendar.go - Year → month → day aggregation for browsing pages

PURPOSE:
  Turns a flat list of reports into the navigable tree the browse pages
  render. The tree is pure derived data, rebuilt on every fetch.

ORDERING:
  Years, months and days are ascending. Days are sorted lexically, which is
  date-correct only because every day is normalized to YYYY-MM-DD first.

COUNTS:
  A day's count is the number of line entries of its reports, or 1 for a
  report without a line-item list. Month and year counts are the sums of
  their children.

EXCLUSIONS:
  Reports whose day cannot be parsed are left out of the tree entirely.
  There is no "unknown" bucket.

EXAMPLE:
  tree := GroupByCalendar(reports, CalendarOptions{DateField: "reportDate"})
  // [{Year:"2023", Months:[{Month:"12", Days:[{Day:"31", ...}]}]},
  //  {Year:"2024", Months:[{Month:"01", Days:[{Day:"05"}, {Day:"20"}]}]}]
*/
package generic

import (
	"sort"
	"strconv"
	"time"
)

// CalendarNode is one year of the tree.
type CalendarNode struct {
	Year   string          `json:"year"`
	Count  int             `json:"count"`
	Months []CalendarMonth `json:"months"`
}

// CalendarMonth is one month inside a year.
type CalendarMonth struct {
	Month string        `json:"month"` // "01".."12"
	Label string        `json:"label"` // "January"
	Count int           `json:"count"`
	Days  []CalendarDay `json:"days"`
}

// CalendarDay is one day bucket.
type CalendarDay struct {
	Day     string   `json:"day"`  // "01".."31"
	Date    string   `json:"date"` // YYYY-MM-DD
	Count   int      `json:"count"`
	Reports []string `json:"reports,omitempty"` // ids, input order
}

// CalendarOptions selects the fields the tree is built from.
type CalendarOptions struct {
	DateField    string
	EntriesField string
}

// GroupByCalendar buckets reports by year, month and day.
func GroupByCalendar(records []Report, opts CalendarOptions) []CalendarNode {
	type bucket struct {
		count int
		ids   []string
	}
	days := make(map[string]*bucket)
	for _, r := range records {
		day, ok := DayOf(r, opts.DateField)
		if !ok {
			continue
		}
		b := days[day]
		if b == nil {
			b = &bucket{}
			days[day] = b
		}
		b.count += entryCount(r, opts.EntriesField)
		if r.ID != "" {
			b.ids = append(b.ids, r.ID)
		}
	}

	sorted := make([]string, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	var tree []CalendarNode
	for _, d := range sorted {
		year, month, dd := d[:4], d[5:7], d[8:10]
		if len(tree) == 0 || tree[len(tree)-1].Year != year {
			tree = append(tree, CalendarNode{Year: year})
		}
		y := &tree[len(tree)-1]
		if len(y.Months) == 0 || y.Months[len(y.Months)-1].Month != month {
			y.Months = append(y.Months, CalendarMonth{Month: month, Label: monthLabel(month)})
		}
		m := &y.Months[len(y.Months)-1]

		b := days[d]
		m.Days = append(m.Days, CalendarDay{Day: dd, Date: d, Count: b.count, Reports: b.ids})
		m.Count += b.count
		y.Count += b.count
	}
	if tree == nil {
		tree = []CalendarNode{}
	}
	return tree
}

func entryCount(r Report, field string) int {
	var fields []string
	if field != "" {
		fields = []string{field}
	}
	if entries, _, ok := r.Payload.Entries(fields...); ok {
		return len(entries)
	}
	return 1
}

func monthLabel(mm string) string {
	n, err := strconv.Atoi(mm)
	if err != nil || n < 1 || n > 12 {
		return mm
	}
	return time.Month(n).String()
}
