package command

import "time"

// Ledger records the last successful trigger per expression key. Entries are created on
// first trigger and never removed, so they outlive config reloads.
type Ledger struct {
	last map[string]time.Time
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{last: make(map[string]time.Time)}
}

// TryTrigger allows key when it has never fired or strictly more than cooldownSeconds
// have elapsed since it last did. On allow, now becomes the last trigger time.
func (l *Ledger) TryTrigger(key string, cooldownSeconds float64, now time.Time) bool {
	if prev, ok := l.last[key]; ok && now.Sub(prev).Seconds() <= cooldownSeconds {
		return false
	}
	l.last[key] = now
	return true
}

// Last returns the last trigger time for key.
func (l *Ledger) Last(key string) (time.Time, bool) {
	t, ok := l.last[key]
	return t, ok
}
