package core

import (
	"fmt"
	"sort"
)

// Order selects how List ranks records
type Order string

const (
	// OrderLegacy compares (processed, -importance_score, date) with the
	// comparison reversed and ties left in stored order.
	OrderLegacy Order = "legacy"

	// OrderPriority lists unprocessed records first, highest score first,
	// then newest raw date first.
	OrderPriority Order = "priority"
)

// ParseOrder converts a name into an Order. Empty selects OrderLegacy.
func ParseOrder(name string) (Order, error) {
	switch Order(name) {
	case "", OrderLegacy:
		return OrderLegacy, nil
	case OrderPriority:
		return OrderPriority, nil
	default:
		return "", fmt.Errorf("unknown order %q", name)
	}
}

// Rank returns a sorted copy of the records
func Rank(records []TriageRecord, order Order) []TriageRecord {
	out := append(make([]TriageRecord, 0, len(records)), records...)
	switch order {
	case OrderPriority:
		sort.SliceStable(out, func(i, j int) bool { return priorityLess(out[i], out[j]) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return legacyKeyLess(out[j], out[i]) })
	}
	return out
}

// legacyKeyLess orders ascending on (processed, -importance_score, date)
func legacyKeyLess(a, b TriageRecord) bool {
	if a.Processed != b.Processed {
		return !a.Processed
	}
	if a.ImportanceScore != b.ImportanceScore {
		return -a.ImportanceScore < -b.ImportanceScore
	}
	return a.Date < b.Date
}

func priorityLess(a, b TriageRecord) bool {
	if a.Processed != b.Processed {
		return !a.Processed
	}
	if a.ImportanceScore != b.ImportanceScore {
		return a.ImportanceScore > b.ImportanceScore
	}
	return a.Date > b.Date
}
