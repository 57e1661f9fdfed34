package event

// Queue is a typed FIFO of commands produced during a tick and drained once,
// in insertion order, by a single consumer. Drain hands the consumer a stable
// slice; anything pushed while draining lands in the next batch.
type Queue[T any] struct {
	items []T
	spare []T
}

func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0, capacity),
		spare: make([]T, 0, capacity),
	}
}

// Push appends a command.
func (q *Queue[T]) Push(v T) {
	q.items = append(q.items, v)
}

// Len reports the number of pending commands.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Drain calls fn for every pending command in insertion order and empties
// the queue. Commands pushed by fn are kept for the next Drain.
func (q *Queue[T]) Drain(fn func(T)) {
	batch := q.items
	q.items, q.spare = q.spare[:0], nil
	for _, v := range batch {
		fn(v)
	}
	var zero T
	for i := range batch {
		batch[i] = zero
	}
	q.spare = batch[:0]
}
