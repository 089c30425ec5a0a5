package billing

import (
	"encoding/json"
	"fmt"
	"math"
)

// ActionKind names a selection transition.
type ActionKind string

const (
	ActionAdd    ActionKind = "ADD"
	ActionRemove ActionKind = "REMOVE"
	ActionClear  ActionKind = "CLEAR"
)

// Action is a single reducer input.
type Action struct {
	Kind ActionKind
	Bill SelectableBill
}

// Add builds an ADD action.
func Add(bill SelectableBill) Action { return Action{Kind: ActionAdd, Bill: bill} }

// Remove builds a REMOVE action.
func Remove(bill SelectableBill) Action { return Action{Kind: ActionRemove, Bill: bill} }

// Clear builds a CLEAR action.
func Clear() Action { return Action{Kind: ActionClear} }

// Selection is an immutable, insertion-ordered set of bills keyed by Key.
// The zero value is an empty selection.
type Selection struct {
	bills []SelectableBill
	keys  map[string]struct{}
}

// Reduce applies action to sel and returns the resulting selection and
// whether anything changed. sel itself is never modified.
func Reduce(sel Selection, action Action) (Selection, bool) {
	switch action.Kind {
	case ActionAdd:
		if !acceptable(action.Bill) {
			return sel, false
		}
		key := Key(action.Bill)
		if sel.hasKey(key) {
			return sel, false
		}
		next := sel.clone(len(sel.bills) + 1)
		next.bills = append(next.bills, action.Bill)
		next.keys[key] = struct{}{}
		return next, true
	case ActionRemove:
		key := Key(action.Bill)
		if !sel.hasKey(key) {
			return sel, false
		}
		next := Selection{
			bills: make([]SelectableBill, 0, len(sel.bills)-1),
			keys:  make(map[string]struct{}, len(sel.keys)-1),
		}
		for _, bill := range sel.bills {
			k := Key(bill)
			if k == key {
				continue
			}
			next.bills = append(next.bills, bill)
			next.keys[k] = struct{}{}
		}
		return next, true
	case ActionClear:
		if len(sel.bills) == 0 {
			return sel, false
		}
		return Selection{}, true
	}
	return sel, false
}

// Has reports whether a bill with the same composite key is present.
func (s Selection) Has(bill SelectableBill) bool {
	return s.hasKey(Key(bill))
}

// Bills returns a copy of the bills in insertion order.
func (s Selection) Bills() []SelectableBill {
	out := make([]SelectableBill, len(s.bills))
	copy(out, s.bills)
	return out
}

// Total sums the amount of every bill.
func (s Selection) Total() float64 {
	var total float64
	for _, bill := range s.bills {
		total += bill.Amount
	}
	return total
}

// Count returns the number of bills.
func (s Selection) Count() int { return len(s.bills) }

func (s Selection) hasKey(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func (s Selection) clone(capacity int) Selection {
	next := Selection{
		bills: make([]SelectableBill, len(s.bills), capacity),
		keys:  make(map[string]struct{}, capacity),
	}
	copy(next.bills, s.bills)
	for k := range s.keys {
		next.keys[k] = struct{}{}
	}
	return next
}

// Snapshot is the persisted form of a selection.
type Snapshot struct {
	Bills []SelectableBill `json:"bills"`
}

// SnapshotOf captures the bills of sel.
func SnapshotOf(sel Selection) Snapshot {
	return Snapshot{Bills: sel.Bills()}
}

// EncodeSnapshot serializes a snapshot as `{"bills":[...]}`.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap.Bills == nil {
		snap.Bills = []SelectableBill{}
	}
	return json.Marshal(snap)
}

// DecodeSnapshot parses persisted snapshot bytes.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return snap, nil
}

// Replay folds every bill of snap into sel through ADD, so invalid and
// duplicate entries are dropped by the same rules as live additions.
func Replay(sel Selection, snap Snapshot) Selection {
	for _, bill := range snap.Bills {
		sel, _ = Reduce(sel, Add(bill))
	}
	return sel
}

// acceptable reports whether bill may enter a selection: a known source and
// a finite positive amount. NaN fails the comparison and is rejected.
func acceptable(bill SelectableBill) bool {
	if !bill.Source.Valid() {
		return false
	}
	return bill.Amount > 0 && !math.IsInf(bill.Amount, 1)
}

