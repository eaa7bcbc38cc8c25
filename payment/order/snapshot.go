// amount-ordered index over one fetched list of external orders
// entries with the same amount are kept in the order they were added, so the
// first order on the page is the first one a tracked payment can claim

package order

import (
	"time"

	"github.com/google/btree"
)

type SnapshotEntry struct {
	Amount   int64
	Deadline *time.Time
	seq      int
}

func (a SnapshotEntry) Less(b btree.Item) bool {
	o := b.(SnapshotEntry)
	if a.Amount != o.Amount {
		return a.Amount < o.Amount
	}
	return a.seq < o.seq
}

type Snapshot struct {
	tree *btree.BTree
	seq  int
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		tree: btree.New(2),
	}
}

func PendingSnapshot(orders []PendingOrder) *Snapshot {
	s := NewSnapshot()
	for _, o := range orders {
		s.Add(o.Amount, o.Deadline)
	}
	return s
}

func ProcessedSnapshot(orders []ProcessedOrder) *Snapshot {
	s := NewSnapshot()
	for _, o := range orders {
		s.Add(o.Amount, nil)
	}
	return s
}

// Add an order to the snapshot
func (s *Snapshot) Add(amount int64, deadline *time.Time) {
	s.tree.ReplaceOrInsert(SnapshotEntry{Amount: amount, Deadline: deadline, seq: s.seq})
	s.seq++
}

// Find returns the earliest added entry with exactly this amount for which
// match returns true. A nil match accepts any entry.
func (s *Snapshot) Find(amount int64, match func(SnapshotEntry) bool) (SnapshotEntry, bool) {
	var found SnapshotEntry
	ok := false
	s.tree.AscendRange(SnapshotEntry{Amount: amount, seq: -1}, SnapshotEntry{Amount: amount + 1, seq: -1}, func(it btree.Item) bool {
		e := it.(SnapshotEntry)
		if match == nil || match(e) {
			found = e
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

func (s *Snapshot) Contains(amount int64) bool {
	_, ok := s.Find(amount, nil)
	return ok
}

// Remove an entry returned by Find
func (s *Snapshot) Remove(e SnapshotEntry) {
	s.tree.Delete(e)
}

func (s *Snapshot) Len() int {
	return s.tree.Len()
}

// Amounts lists the amounts in ascending order, for logging.
func (s *Snapshot) Amounts() []int64 {
	amounts := make([]int64, 0, s.tree.Len())
	s.tree.Ascend(func(it btree.Item) bool {
		amounts = append(amounts, it.(SnapshotEntry).Amount)
		return true
	})
	return amounts
}
