package world

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoCapacity is returned when every inhabitable mass is claimed.
	ErrNoCapacity = errors.New("no free inhabitable mass")
	// ErrDuplicateClient is returned when a client ID is already connected.
	ErrDuplicateClient = errors.New("client already connected")
	// ErrClientDeparted is returned when a client that left tries to rejoin.
	ErrClientDeparted = errors.New("client already left this session")
	// ErrSessionEnded is returned once an assigned client has left.
	ErrSessionEnded = errors.New("session ended: assigned client disconnected")
)

// GameState is the session-wide lifecycle state. It only moves forward.
type GameState uint8

const (
	StateStopped GameState = iota
	StateWaiting
	StateRunning
)

func (s GameState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateWaiting:
		return "Waiting"
	case StateRunning:
		return "Running"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Valid reports whether s is a known state.
func (s GameState) Valid() bool { return s <= StateRunning }

// ReadyOutcome tells the caller how to answer a Ready message.
type ReadyOutcome uint8

const (
	ReadyIgnored ReadyOutcome = iota // unassigned client or already running
	ReadyWaiting                     // reply SetGameState(Waiting) to the sender
	ReadyStarted                     // broadcast SetGameState(Running)
)

// Lobby owns the game state machine and the client → mass assignment.
// Mutated only by the server's input pass.
type Lobby struct {
	state GameState

	pool    []MassID // unclaimed inhabitable masses, ascending
	clients map[ClientID]MassID
	claimed map[MassID]struct{}
	ready   map[ClientID]bool
	left    map[ClientID]struct{} // released clients; they may not rejoin
}

// NewLobby builds a lobby whose pool holds the given inhabitable masses.
func NewLobby(inhabitable []MassID) *Lobby {
	pool := make([]MassID, len(inhabitable))
	copy(pool, inhabitable)
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
	return &Lobby{
		pool:    pool,
		clients: make(map[ClientID]MassID),
		claimed: make(map[MassID]struct{}),
		ready:   make(map[ClientID]bool),
		left:    make(map[ClientID]struct{}),
	}
}

func (l *Lobby) State() GameState { return l.state }

// Advance moves the state machine forward. Moving backwards or staying put
// is an error.
func (l *Lobby) Advance(to GameState) error {
	if !to.Valid() || to <= l.state {
		return fmt.Errorf("illegal game state transition %s -> %s", l.state, to)
	}
	l.state = to
	return nil
}

// Free reports how many inhabitable masses are still unclaimed.
func (l *Lobby) Free() int { return len(l.pool) }

// PoolEmpty reports whether every inhabitable mass has been claimed.
func (l *Lobby) PoolEmpty() bool { return len(l.pool) == 0 }

// Assign claims the lowest free inhabitable mass for c. A claimed mass is
// never handed out again, even after its client leaves. The first
// assignment moves the lobby from Stopped to Waiting.
func (l *Lobby) Assign(c ClientID) (MassID, error) {
	if _, ok := l.clients[c]; ok {
		return 0, ErrDuplicateClient
	}
	if _, ok := l.left[c]; ok {
		return 0, ErrClientDeparted
	}
	if len(l.pool) == 0 {
		return 0, ErrNoCapacity
	}
	id := l.pool[0]
	l.pool = l.pool[1:]
	l.clients[c] = id
	l.claimed[id] = struct{}{}
	if l.state == StateStopped {
		l.state = StateWaiting
	}
	return id, nil
}

// MassOf returns the mass assigned to c.
func (l *Lobby) MassOf(c ClientID) (MassID, bool) {
	id, ok := l.clients[c]
	return id, ok
}

// Release forgets a client without returning its mass to the pool. The
// client ID cannot be assigned again.
func (l *Lobby) Release(c ClientID) (MassID, bool) {
	id, ok := l.clients[c]
	if !ok {
		return 0, false
	}
	delete(l.clients, c)
	delete(l.ready, c)
	l.left[c] = struct{}{}
	return id, true
}

// MarkReady records that c finished local init and decides whether the
// game can start: every inhabitable mass claimed and every assigned
// client ready.
func (l *Lobby) MarkReady(c ClientID) ReadyOutcome {
	if l.state == StateRunning {
		return ReadyIgnored
	}
	if _, ok := l.clients[c]; !ok {
		return ReadyIgnored
	}
	l.ready[c] = true
	if !l.PoolEmpty() {
		return ReadyWaiting
	}
	for client := range l.clients {
		if !l.ready[client] {
			return ReadyWaiting
		}
	}
	l.state = StateRunning
	return ReadyStarted
}

// ClientMassMap returns a copy of the current assignment.
func (l *Lobby) ClientMassMap() map[ClientID]MassID {
	out := make(map[ClientID]MassID, len(l.clients))
	for c, m := range l.clients {
		out[c] = m
	}
	return out
}

// Clients returns assigned client IDs in ascending order.
func (l *Lobby) Clients() []ClientID {
	out := make([]ClientID, 0, len(l.clients))
	for c := range l.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
