package core

import (
	"time"

	"herald/internal/storage"
	"herald/internal/types"
	"herald/internal/utils/hash"
)

const recordDateLayout = "Mon Jan 02 2006"

// Detection is the outcome of comparing one fetch against a source's prior
// ledger entry.
type Detection struct {
	New       []*types.Item
	Entry     storage.Entry
	Total     int
	Seen      int
	Screened  int
	Tokenless int
}

// Detect classifies items against prior. An item is new when its fingerprint
// is absent from prior and, if screen is non-nil, the screen accepts it.
// The returned entry is rebuilt from every token-bearing item of the fetch,
// eligible or not, so fingerprints that dropped out of the source's window
// roll off. New items keep their input order.
func Detect(items []*types.Item, prior storage.Entry, identify func(*types.Item) string, screen types.Screener, now time.Time) Detection {
	d := Detection{
		New:   make([]*types.Item, 0),
		Entry: make(storage.Entry, 0, len(items)),
		Total: len(items),
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		token := identify(item)
		if token == "" {
			d.Tokenless++
			continue
		}

		fp := hash.Fingerprint(token)
		if seen[fp] {
			continue
		}
		seen[fp] = true

		d.Entry = append(d.Entry, storage.Record{Hash: fp, Date: recordDate(item, now)})

		if prior.Contains(fp) {
			d.Seen++
			continue
		}
		if screen != nil && !screen.Eligible(item) {
			d.Screened++
			continue
		}
		d.New = append(d.New, item)
	}

	return d
}

func recordDate(item *types.Item, now time.Time) string {
	if item.Published != "" {
		return item.Published
	}
	if !item.Timestamp.IsZero() {
		return item.Timestamp.Format(recordDateLayout)
	}
	return now.Format(recordDateLayout)
}
