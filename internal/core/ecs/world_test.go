package ecs

import "testing"

func TestFlushDestroysDependentsDepthFirst(t *testing.T) {
	w := NewWorld()
	if err := w.CreateWithID(10); err != nil {
		t.Fatal(err)
	}
	a, _ := w.CreateChild(10)
	b, _ := w.CreateChild(10)
	aa, _ := w.CreateChild(a)

	if a <= 10 || b <= a {
		t.Fatalf("ids not allocated past reserved id: a=%d b=%d", a, b)
	}

	w.MarkForDestruction(10)
	if w.Alive(10) {
		t.Fatal("queued entity still reported alive")
	}
	if !w.Alive(a) {
		t.Fatal("child hidden before flush")
	}

	got := w.FlushDestroyQueue()
	want := []EntityID{10, a, aa, b}
	if len(got) != len(want) {
		t.Fatalf("destroyed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("destroyed %v, want %v", got, want)
		}
	}
	if w.Len() != 0 {
		t.Fatalf("world still holds %d entities", w.Len())
	}
}

func TestDoubleMarkAndNestedQueue(t *testing.T) {
	w := NewWorld()
	root := w.CreateEntity()
	kid, _ := w.CreateChild(root)

	w.MarkForDestruction(kid)
	w.MarkForDestruction(kid)
	w.MarkForDestruction(root)

	got := w.FlushDestroyQueue()
	if len(got) != 2 || got[0] != kid || got[1] != root {
		t.Fatalf("destroyed %v, want [%d %d]", got, kid, root)
	}
	if w.FlushDestroyQueue() != nil {
		t.Fatal("second flush should be empty")
	}
}

func TestReparent(t *testing.T) {
	w := NewWorld()
	a := w.CreateEntity()
	b := w.CreateEntity()
	p, _ := w.CreateChild(a)

	if err := w.Reparent(p, b); err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	if w.Parent(p) != b {
		t.Fatalf("parent = %d, want %d", w.Parent(p), b)
	}
	if len(w.Children(a)) != 0 {
		t.Fatalf("old parent still owns %v", w.Children(a))
	}
	if err := w.Reparent(b, p); err == nil {
		t.Fatal("expected cycle error")
	}

	w.MarkForDestruction(a)
	got := w.FlushDestroyQueue()
	if len(got) != 1 || got[0] != a {
		t.Fatalf("destroyed %v, want only %d", got, a)
	}
	if !w.Alive(p) {
		t.Fatal("reparented child destroyed with old parent")
	}
}

func TestCreateWithIDRejectsDuplicatesAndZero(t *testing.T) {
	w := NewWorld()
	if err := w.CreateWithID(0); err == nil {
		t.Fatal("expected error for id 0")
	}
	if err := w.CreateWithID(3); err != nil {
		t.Fatal(err)
	}
	if err := w.CreateWithID(3); err == nil {
		t.Fatal("expected duplicate error")
	}
}
