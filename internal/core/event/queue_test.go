package event

import "testing"

func TestQueueDrainsInOrder(t *testing.T) {
	q := NewQueue[int](4)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	var got []int
	q.Drain(func(v int) { got = append(got, v) })

	if len(got) != 5 {
		t.Fatalf("drained %v", got)
	}
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("drained %v, want 1..5 in order", got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", q.Len())
	}
}

func TestQueuePushDuringDrainDefers(t *testing.T) {
	q := NewQueue[string](2)
	q.Push("a")
	var first []string
	q.Drain(func(v string) {
		first = append(first, v)
		q.Push(v + "'")
	})
	if len(first) != 1 || first[0] != "a" {
		t.Fatalf("first batch = %v", first)
	}
	if q.Len() != 1 {
		t.Fatalf("deferred len = %d, want 1", q.Len())
	}
	var second []string
	q.Drain(func(v string) { second = append(second, v) })
	if len(second) != 1 || second[0] != "a'" {
		t.Fatalf("second batch = %v", second)
	}
}
