// Package queue implements the intrusive FIFO used for the scheduler's
// ready/wait/zombie lists: a thin wrapper around container/list that
// only ever holds one kind of element and nulls the element's link
// field on removal. PushBack does not check whether the element already
// sits in another queue; pushing it into a second queue leaves it in
// both, with its link field pointing at the newer one.
package queue

import "container/list"

// Elem is implemented by anything that can sit in a Queue. QElem/SetQElem
// give the queue a place to stash the container/list.Element so a value can
// be removed in O(1) without a linear search.
type Elem interface {
	QElem() *list.Element
	SetQElem(*list.Element)
}

// Queue is a FIFO of Elem values.
type Queue struct {
	l *list.List
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{l: list.New()}
}

// Empty reports whether the queue holds no elements.
func (q *Queue) Empty() bool {
	return q.l.Len() == 0
}

// Len returns the number of elements in the queue.
func (q *Queue) Len() int {
	return q.l.Len()
}

// PushBack appends e to the tail of the queue.
func (q *Queue) PushBack(e Elem) {
	le := q.l.PushBack(e)
	e.SetQElem(le)
}

// Front returns the element at the head of the queue, or nil if empty.
func (q *Queue) Front() Elem {
	fe := q.l.Front()
	if fe == nil {
		return nil
	}
	return fe.Value.(Elem)
}

// PopFront removes and returns the head of the queue, or nil if empty.
func (q *Queue) PopFront() Elem {
	fe := q.l.Front()
	if fe == nil {
		return nil
	}
	e := fe.Value.(Elem)
	q.l.Remove(fe)
	e.SetQElem(nil)
	return e
}

// Remove removes e from the queue if it is present. It is a no-op if e is
// not currently linked into this queue.
func (q *Queue) Remove(e Elem) {
	le := e.QElem()
	if le == nil {
		return
	}
	q.l.Remove(le)
	e.SetQElem(nil)
}

// Each calls f for every element, front to back. f must not mutate the
// queue.
func (q *Queue) Each(f func(Elem)) {
	for el := q.l.Front(); el != nil; el = el.Next() {
		f(el.Value.(Elem))
	}
}
