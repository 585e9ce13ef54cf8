package engine

// tokenLedger folds per-report token deltas into per-date rollups and a
// cumulative running total. Deltas for past dates fold into past
// rollups, so delayed delivery never loses accounting accuracy. A
// rollup always equals the sum of the deltas folded into it — nothing
// else ever writes a rollup.
type tokenLedger struct {
	daily      map[string]int64
	cumulative int64
}

func newTokenLedger() *tokenLedger {
	return &tokenLedger{daily: make(map[string]int64)}
}

// add folds one delta into the ledger.
func (l *tokenLedger) add(date string, delta int64) {
	if delta == 0 {
		return
	}
	l.daily[date] += delta
	l.cumulative += delta
}

// restore seeds a rollup from storage at warm load.
func (l *tokenLedger) restore(date string, tokens int64) {
	l.daily[date] = tokens
	l.cumulative += tokens
}

// day returns the rollup total for one calendar date.
func (l *tokenLedger) day(date string) int64 { return l.daily[date] }

// total returns the cumulative token count across all dates.
func (l *tokenLedger) total() int64 { return l.cumulative }
