package transactions

import (
	"slices"
	"time"
)

// Section titles that do not depend on the month name.
const (
	SectionPending   = "Pending"
	SectionToday     = "Today"
	SectionYesterday = "Yesterday"
	SectionThisMonth = "This Month"
)

// Section is a titled run of transactions in the activity list.
type Section struct {
	Title        string        `json:"title"`
	Transactions []Transaction `json:"data"`
}

// GroupByDate splits txns into date sections relative to now, using
// now.Location() for day boundaries. Sections appear in the order their
// first transaction appears in txns.
func GroupByDate(txns []Transaction, now time.Time) []Section {
	b := newDateBuckets(now)

	sections := []Section{}
	index := make(map[string]int)
	for _, txn := range txns {
		title := b.title(txn)
		i, ok := index[title]
		if !ok {
			i = len(sections)
			index[title] = i
			sections = append(sections, Section{Title: title})
		}
		sections[i].Transactions = append(sections[i].Transactions, txn)
	}
	return sections
}

// SortByMinedAt orders txns newest first. Pending and undated transactions
// come before everything else; ties keep their input order.
func SortByMinedAt(txns []Transaction) {
	slices.SortStableFunc(txns, func(a, b Transaction) int {
		aTop := a.Pending || a.MinedAt == nil
		bTop := b.Pending || b.MinedAt == nil
		switch {
		case aTop && bTop:
			return 0
		case aTop:
			return -1
		case bTop:
			return 1
		}
		return b.MinedAt.Compare(*a.MinedAt)
	})
}

type dateBuckets struct {
	loc       *time.Location
	today     time.Time
	yesterday time.Time
	thisMonth time.Time
	thisYear  time.Time
}

func newDateBuckets(now time.Time) dateBuckets {
	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return dateBuckets{
		loc:       loc,
		today:     today,
		yesterday: today.AddDate(0, 0, -1),
		thisMonth: time.Date(y, m, 1, 0, 0, 0, 0, loc),
		thisYear:  time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
	}
}

func (b dateBuckets) title(txn Transaction) string {
	if txn.Pending || txn.MinedAt == nil {
		return SectionPending
	}

	ts := txn.MinedAt.In(b.loc)
	switch {
	case !ts.Before(b.today):
		return SectionToday
	case !ts.Before(b.yesterday):
		return SectionYesterday
	case !ts.Before(b.thisMonth):
		return SectionThisMonth
	case !ts.Before(b.thisYear):
		return ts.Format("January")
	default:
		return ts.Format("January 2006")
	}
}
