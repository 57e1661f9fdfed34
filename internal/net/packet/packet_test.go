package packet

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestWriterReaderFields(t *testing.T) {
	w := NewWriterWithOpcode(42)
	w.WriteC(7)
	w.WriteBool(true)
	w.WriteH(0xBEEF)
	w.WriteD(0xDEADBEEF)
	w.WriteQ(0x0123456789ABCDEF)
	w.WriteF(-1.5)
	w.WriteBytes([]byte("xyz"))

	r := NewReader(w.Bytes())
	if r.Opcode() != 42 {
		t.Fatalf("opcode = %d", r.Opcode())
	}
	if v := r.ReadC(); v != 7 {
		t.Errorf("C = %d", v)
	}
	if !r.ReadBool() {
		t.Error("bool = false")
	}
	if v := r.ReadH(); v != 0xBEEF {
		t.Errorf("H = %x", v)
	}
	if v := r.ReadD(); v != 0xDEADBEEF {
		t.Errorf("D = %x", v)
	}
	if v := r.ReadQ(); v != 0x0123456789ABCDEF {
		t.Errorf("Q = %x", v)
	}
	if v := r.ReadF(); v != -1.5 {
		t.Errorf("F = %v", v)
	}
	if v := string(r.ReadRest()); v != "xyz" {
		t.Errorf("rest = %q", v)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected err %v", r.Err())
	}
}

func TestReaderLatchesShortRead(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_ = r.ReadQ()
	if r.Err() == nil {
		t.Fatal("expected short read error")
	}
	if v := r.ReadC(); v != 0 {
		t.Fatalf("read after error = %d", v)
	}
	bad := NewReader([]byte{1, 5})
	bad.ReadBool()
	if bad.Err() == nil {
		t.Fatal("expected invalid bool error")
	}
}

func TestRegistryDispatchGating(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var got []byte
	reg.Register(1, []SessionState{StateJoined}, func(_ any, r *Reader) error {
		got = append(got, r.ReadC())
		return r.Err()
	})
	reg.Register(2, []SessionState{StateJoined}, func(any, *Reader) error {
		return errors.New("bad body")
	})
	reg.Register(3, []SessionState{StateJoined}, func(any, *Reader) error {
		panic("boom")
	})

	if err := reg.Dispatch(nil, StateJoined, []byte{1, 9}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(got) != 1 || got[0] != 9 {
		t.Fatalf("handler saw %v", got)
	}

	cases := []struct {
		state SessionState
		data  []byte
		want  string
	}{
		{StateJoined, nil, "empty"},
		{StateJoined, []byte{99}, "unknown opcode"},
		{StateHandshake, []byte{1, 0}, "not allowed"},
		{StateJoined, []byte{1}, "short read"},
		{StateJoined, []byte{2}, "bad body"},
		{StateJoined, []byte{3}, "panic"},
	}
	for _, tc := range cases {
		err := reg.Dispatch(nil, tc.state, tc.data)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Dispatch(%v, %v) = %v, want %q", tc.state, tc.data, err, tc.want)
		}
	}
}
