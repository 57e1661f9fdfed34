package protocol

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/world"
)

var (
	// ErrMalformed marks a message whose body cannot be decoded.
	ErrMalformed = errors.New("malformed message")
	// ErrVersionMismatch is returned when a peer speaks another protocol version.
	ErrVersionMismatch = errors.New("protocol version mismatch")
)

// CheckVersion compares a peer's announced version with ours.
func CheckVersion(got, want uint64) error {
	if got != want {
		return fmt.Errorf("%w: peer %d, local %d", ErrVersionMismatch, got, want)
	}
	return nil
}

// Message is anything that can be put on the wire.
type Message interface {
	Opcode() byte
	encode(w *packet.Writer) error
}

// Encode serializes m as [opcode][body].
func Encode(m Message) ([]byte, error) {
	w := packet.NewWriterWithOpcode(m.Opcode())
	if err := m.encode(w); err != nil {
		return nil, fmt.Errorf("encode %s: %w", OpcodeName(m.Opcode()), err)
	}
	return w.Bytes(), nil
}

// finish rejects short reads and trailing bytes.
func finish(r *packet.Reader) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, OpcodeName(r.Opcode()), err)
	}
	if n := r.Remaining(); n != 0 {
		return fmt.Errorf("%w: %s: %d trailing bytes", ErrMalformed, OpcodeName(r.Opcode()), n)
	}
	return nil
}

func writeVec3(w *packet.Writer, v mgl32.Vec3) {
	w.WriteF(v[0])
	w.WriteF(v[1])
	w.WriteF(v[2])
}

func readVec3(r *packet.Reader) mgl32.Vec3 {
	return mgl32.Vec3{r.ReadF(), r.ReadF(), r.ReadF()}
}

// Quaternions travel as [x, y, z, w].
func writeQuat(w *packet.Writer, q mgl32.Quat) {
	writeVec3(w, q.V)
	w.WriteF(q.W)
}

func readQuat(r *packet.Reader) mgl32.Quat {
	v := readVec3(r)
	return mgl32.Quat{W: r.ReadF(), V: v}
}

// --- client → server ---

// Hello opens every connection.
type Hello struct {
	Version  uint64
	ClientID uint64
}

func (Hello) Opcode() byte { return C_HELLO }

func (m Hello) encode(w *packet.Writer) error {
	w.WriteQ(m.Version)
	w.WriteQ(m.ClientID)
	return nil
}

func DecodeHello(r *packet.Reader) (Hello, error) {
	m := Hello{Version: r.ReadQ(), ClientID: r.ReadQ()}
	return m, finish(r)
}

// Ready signals the client finished local init.
type Ready struct{}

func (Ready) Opcode() byte                { return C_READY }
func (Ready) encode(*packet.Writer) error { return nil }

func DecodeReady(r *packet.Reader) (Ready, error) {
	return Ready{}, finish(r)
}

// Rotation carries the sender's inhabited-mass orientation.
type Rotation struct {
	Rotation mgl32.Quat
}

func (Rotation) Opcode() byte { return C_ROTATION }

func (m Rotation) encode(w *packet.Writer) error {
	writeQuat(w, m.Rotation)
	return nil
}

func DecodeRotation(r *packet.Reader) (Rotation, error) {
	m := Rotation{Rotation: readQuat(r)}
	return m, finish(r)
}

// ProjectileFired describes a shot. The same body is used client → server
// and for the relay; only the opcode differs.
type ProjectileFired struct {
	LaunchTime     uint64 // ms since epoch; u128 on the wire
	From           uint64
	To             uint64
	LocalImpactDir mgl32.Vec3
	Relay          bool
}

func (m ProjectileFired) Opcode() byte {
	if m.Relay {
		return S_PROJECTILE_FIRED
	}
	return C_PROJECTILE_FIRED
}

func (m ProjectileFired) encode(w *packet.Writer) error {
	w.WriteQ(m.LaunchTime)
	w.WriteQ(0) // high word of the u128
	w.WriteQ(m.From)
	w.WriteQ(m.To)
	writeVec3(w, m.LocalImpactDir)
	return nil
}

func DecodeProjectileFired(r *packet.Reader) (ProjectileFired, error) {
	m := ProjectileFired{LaunchTime: r.ReadQ()}
	hi := r.ReadQ()
	m.From = r.ReadQ()
	m.To = r.ReadQ()
	m.LocalImpactDir = readVec3(r)
	m.Relay = r.Opcode() == S_PROJECTILE_FIRED
	if err := finish(r); err != nil {
		return m, err
	}
	if hi != 0 {
		return m, fmt.Errorf("%w: launch_time exceeds 64 bits", ErrMalformed)
	}
	return m, nil
}

// --- server → client ---

// RejectReason says why a Hello was refused.
type RejectReason uint8

const (
	RejectVersion RejectReason = iota + 1
	RejectDuplicateClient
	RejectBadHandshake
	RejectClientDeparted
)

func (r RejectReason) String() string {
	switch r {
	case RejectVersion:
		return "version mismatch"
	case RejectDuplicateClient:
		return "duplicate client id"
	case RejectBadHandshake:
		return "bad handshake"
	case RejectClientDeparted:
		return "client already left"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Reject refuses a connection; the server closes it afterwards.
type Reject struct {
	Reason RejectReason
	Detail string
}

func (Reject) Opcode() byte { return S_REJECT }

func (m Reject) encode(w *packet.Writer) error {
	if len(m.Detail) > 0xFFFF {
		return fmt.Errorf("reject detail too long: %d bytes", len(m.Detail))
	}
	w.WriteC(byte(m.Reason))
	w.WriteH(uint16(len(m.Detail)))
	w.WriteBytes([]byte(m.Detail))
	return nil
}

func DecodeReject(r *packet.Reader) (Reject, error) {
	m := Reject{Reason: RejectReason(r.ReadC())}
	n := r.ReadH()
	m.Detail = string(r.ReadBytes(int(n)))
	return m, finish(r)
}

// SetGameState mirrors the server's game state.
type SetGameState struct {
	State world.GameState
}

func (SetGameState) Opcode() byte { return S_SET_GAME_STATE }

func (m SetGameState) encode(w *packet.Writer) error {
	w.WriteC(byte(m.State))
	return nil
}

func DecodeSetGameState(r *packet.Reader) (SetGameState, error) {
	m := SetGameState{State: world.GameState(r.ReadC())}
	if err := finish(r); err != nil {
		return m, err
	}
	if !m.State.Valid() {
		return m, fmt.Errorf("%w: unknown game state %d", ErrMalformed, uint8(m.State))
	}
	return m, nil
}

// ClientJoined announces a new assignment.
type ClientJoined struct {
	ClientID uint64
	MassID   uint64
}

func (ClientJoined) Opcode() byte { return S_CLIENT_JOINED }

func (m ClientJoined) encode(w *packet.Writer) error {
	w.WriteQ(m.ClientID)
	w.WriteQ(m.MassID)
	return nil
}

func DecodeClientJoined(r *packet.Reader) (ClientJoined, error) {
	m := ClientJoined{ClientID: r.ReadQ(), MassID: r.ReadQ()}
	return m, finish(r)
}

// InhabitantRotation relays a client's rotation to the others.
type InhabitantRotation struct {
	ClientID uint64
	Rotation mgl32.Quat
}

func (InhabitantRotation) Opcode() byte { return S_INHABITANT_ROTATION }

func (m InhabitantRotation) encode(w *packet.Writer) error {
	w.WriteQ(m.ClientID)
	writeQuat(w, m.Rotation)
	return nil
}

func DecodeInhabitantRotation(r *packet.Reader) (InhabitantRotation, error) {
	m := InhabitantRotation{ClientID: r.ReadQ()}
	m.Rotation = readQuat(r)
	return m, finish(r)
}

// NoCapacity tells a connecting client that no inhabitable mass is free.
type NoCapacity struct{}

func (NoCapacity) Opcode() byte                { return S_NO_CAPACITY }
func (NoCapacity) encode(*packet.Writer) error { return nil }

func DecodeNoCapacity(r *packet.Reader) (NoCapacity, error) {
	return NoCapacity{}, finish(r)
}
