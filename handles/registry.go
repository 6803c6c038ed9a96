// Package handles tracks the opaque numeric handles that identify live
// engine and database instances on either side of the sandbox boundary.
package handles

import (
	"sort"
	"sync"
)

// Handle identifies a live instance. Zero is never issued.
type Handle uint32

// Registry maps handles to the values they stand for. Handles are issued in
// increasing order and never reused, so a released handle can never alias a
// newer instance.
type Registry[T any] struct {
	items  map[Handle]T
	lastID Handle
	m      sync.RWMutex
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[Handle]T),
	}
}

// Register stores item and returns its new handle.
func (r *Registry[T]) Register(item T) Handle {
	r.m.Lock()
	defer r.m.Unlock()
	r.lastID++
	r.items[r.lastID] = item
	return r.lastID
}

// Adopt stores item under a handle issued elsewhere, typically by the
// engine. It returns false if h is already live.
func (r *Registry[T]) Adopt(h Handle, item T) bool {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.items[h]; ok {
		return false
	}
	r.items[h] = item
	if h > r.lastID {
		r.lastID = h
	}
	return true
}

func (r *Registry[T]) Get(h Handle) (T, bool) {
	r.m.RLock()
	defer r.m.RUnlock()
	item, ok := r.items[h]
	return item, ok
}

// Release forgets h and returns what it stood for.
func (r *Registry[T]) Release(h Handle) (T, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	item, ok := r.items[h]
	if ok {
		delete(r.items, h)
	}
	return item, ok
}

func (r *Registry[T]) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.items)
}

// Range calls fn for each live handle in ascending order until fn returns
// false. fn runs without the registry lock held.
func (r *Registry[T]) Range(fn func(Handle, T) bool) {
	r.m.RLock()
	hs := make([]Handle, 0, len(r.items))
	for h := range r.items {
		hs = append(hs, h)
	}
	items := make(map[Handle]T, len(r.items))
	for h, item := range r.items {
		items[h] = item
	}
	r.m.RUnlock()

	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	for _, h := range hs {
		if !fn(h, items[h]) {
			return
		}
	}
}
