// Package expiring introduces tables with the ability to prune their own elements.
package expiring

import (
	"sync"
	"time"
)

// wrapped value with an expiration timer attached
type timedV[value_t any] struct {
	val value_t
	exp *time.Timer // expiring timer to clear this element out of the table
	gen uint64      // distinguishes this store from later stores of the same key
}

// A Table is a map whose elements prune themselves after their duration elapses.
// Construct one with New.
//
// NOTE: Tables should only be passed by reference due to the underlying mutex.
//
// NOTE: accessing elements AT their expiration time is, by its very nature, a race.
// If a timer has not expired, then its associated data is guaranteed to not have been pruned. The inverse is not guaranteed.
type Table[key_t comparable, value_t any] struct {
	mu  sync.Mutex
	m   map[key_t]timedV[value_t]
	gen uint64
}

// New returns an empty table ready for use.
func New[key_t comparable, value_t any]() *Table[key_t, value_t] {
	return &Table[key_t, value_t]{m: make(map[key_t]timedV[value_t])}
}

// Store saves the given k/v and sets them to expire after the given time.
// If a value was previously associated to this key, it is overwritten and its timer discarded.
// cleanup functions are called in given order after an expired key is deleted from the table; they are not called on Delete or overwrite.
func (tbl *Table[key_t, value_t]) Store(key key_t, value value_t, expire time.Duration, cleanup ...func(key_t, value_t)) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if prior, found := tbl.m[key]; found {
		prior.exp.Stop()
	}
	tbl.gen++
	gen := tbl.gen
	tbl.m[key] = timedV[value_t]{
		val: value,
		gen: gen,
		exp: time.AfterFunc(expire, func() {
			tbl.mu.Lock()
			cur, found := tbl.m[key]
			// a newer store owns the key; it has its own timer
			if !found || cur.gen != gen {
				tbl.mu.Unlock()
				return
			}
			delete(tbl.m, key)
			tbl.mu.Unlock()
			for _, f := range cleanup {
				f(key, value)
			}
		}),
	}
}

// Load fetches the value associated to the given key if available.
func (tbl *Table[key_t, value_t]) Load(key key_t) (value value_t, found bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tVal, found := tbl.m[key]
	if !found {
		return value, false
	}
	return tVal.val, true
}

// Delete destroys a key in the map and stops its timer (if found).
// Ineffectual if key is not found.
func (tbl *Table[key_t, value_t]) Delete(key key_t) (found bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tVal, found := tbl.m[key]
	if !found {
		return false
	}
	tVal.exp.Stop()
	delete(tbl.m, key)
	return true
}

// Len returns the number of unexpired elements.
func (tbl *Table[key_t, value_t]) Len() int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return len(tbl.m)
}
