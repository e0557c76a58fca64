// Package market defines core types shared across subsystems.
package market

import "time"

// Record is one observed market entry at one point in time. The field set is
// fixed; every record in a snapshot has the same shape.
type Record struct {
	Pair      string `json:"pair"`
	Price     string `json:"price"`
	Change24h string `json:"change_24h"`
}

// Snapshot is the full ordered set of records from one successful
// acquisition, plus the time it was captured.
type Snapshot struct {
	Records    []Record  `json:"records"`
	CapturedAt time.Time `json:"captured_at"`
}

// Empty reports whether the snapshot holds no records.
func (s Snapshot) Empty() bool {
	return len(s.Records) == 0
}

// Clone returns an independent deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := Snapshot{CapturedAt: s.CapturedAt}
	if len(s.Records) > 0 {
		cp.Records = make([]Record, len(s.Records))
		copy(cp.Records, s.Records)
	}
	return cp
}
