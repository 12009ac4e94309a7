package storage

// Record is one remembered fingerprint. Date is the human readable time the
// record was written and is informational only.
type Record struct {
	Hash string `json:"hash"`
	Date string `json:"date"`
}

// Entry is the ordered fingerprint snapshot of a single source as of its
// last successful fetch.
type Entry []Record

func (e Entry) Contains(hash string) bool {
	for _, r := range e {
		if r.Hash == hash {
			return true
		}
	}
	return false
}

func (e Entry) Clone() Entry {
	if e == nil {
		return nil
	}
	out := make(Entry, len(e))
	copy(out, e)
	return out
}

// Ledger maps a source identity to its entry. Entries of sources that are no
// longer configured are retained untouched.
type Ledger map[string]Entry

func NewLedger() Ledger {
	return make(Ledger)
}

// EntryFor returns the entry stored for identity, or nil when the source has
// never been seen.
func (l Ledger) EntryFor(identity string) Entry {
	if l == nil {
		return nil
	}
	return l[identity]
}

func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v.Clone()
	}
	return out
}

// Records counts every fingerprint across all sources.
func (l Ledger) Records() int {
	n := 0
	for _, e := range l {
		n += len(e)
	}
	return n
}
