package rms

import (
	"reflect"
	"slices"
)

// Listener receives change notifications for a store.
//
// Callbacks run synchronously on the goroutine performing the mutation,
// after the change is durable in the store header and while the store's
// lock is held. A listener must not call back into the same store; doing
// so deadlocks.
//
// Listeners are identified with ==, so their dynamic type must be
// comparable. Pointers to listener structs always are; a struct value
// holding a func, map or slice is rejected by [Store.AddListener].
type Listener interface {
	RecordAdded(s *Store, id RecordID)
	RecordChanged(s *Store, id RecordID)
	RecordDeleted(s *Store, id RecordID)
}

// comparableListener reports whether l can be compared with == without
// panicking.
func comparableListener(l Listener) bool {
	return l != nil && reflect.TypeOf(l).Comparable()
}

// notifier keeps the listeners registered on one store instance in
// registration order. Every listener is comparable.
type notifier struct {
	listeners []Listener
}

// add registers l unless it is already registered.
func (n *notifier) add(l Listener) {
	if slices.Contains(n.listeners, l) {
		return
	}

	n.listeners = append(n.listeners, l)
}

// remove unregisters l. Removing an unknown listener is a no-op.
func (n *notifier) remove(l Listener) {
	n.listeners = slices.DeleteFunc(n.listeners, func(x Listener) bool { return x == l })
}

func (n *notifier) clear() {
	n.listeners = nil
}

func (n *notifier) recordAdded(s *Store, id RecordID) {
	for _, l := range n.listeners {
		l.RecordAdded(s, id)
	}
}

func (n *notifier) recordChanged(s *Store, id RecordID) {
	for _, l := range n.listeners {
		l.RecordChanged(s, id)
	}
}

func (n *notifier) recordDeleted(s *Store, id RecordID) {
	for _, l := range n.listeners {
		l.RecordDeleted(s, id)
	}
}
