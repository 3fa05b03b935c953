// Package guard keeps a busy flag per entity so that two in-flight mutations
// never run against the same cart line or order at once.
package guard

import (
	"sync"

	"github.com/yeremiapane/mealplan-app/apperr"
)

type Busy struct {
	mutex sync.Mutex
	held  map[string]struct{}
}

func NewBusy() *Busy {
	return &Busy{held: make(map[string]struct{})}
}

// Acquire marks id busy. It fails with a state error when id is already busy.
// The returned release func is safe to call more than once.
func (b *Busy) Acquire(id string) (func(), error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, ok := b.held[id]; ok {
		return nil, apperr.Statef("another change to %s is still in progress", id)
	}
	b.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mutex.Lock()
			delete(b.held, id)
			b.mutex.Unlock()
		})
	}, nil
}

func (b *Busy) IsBusy(id string) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, ok := b.held[id]
	return ok
}
