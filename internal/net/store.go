package net

import "sort"

// SessionStore tracks live sessions. Game loop only.
type SessionStore struct {
	sessions map[uint64]*Session
	order    []uint64
	dirty    bool
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (st *SessionStore) Add(s *Session) {
	st.sessions[s.ID] = s
	st.dirty = true
}

func (st *SessionStore) Remove(id uint64) {
	if _, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		st.dirty = true
	}
}

func (st *SessionStore) Get(id uint64) *Session {
	return st.sessions[id]
}

func (st *SessionStore) Len() int {
	return len(st.sessions)
}

// ByClient finds the joined session speaking for a client ID.
func (st *SessionStore) ByClient(clientID uint64) *Session {
	if clientID == 0 {
		return nil
	}
	for _, id := range st.ids() {
		if s := st.sessions[id]; s.ClientID == clientID {
			return s
		}
	}
	return nil
}

// ForEach visits sessions in ascending session ID order, so broadcasts
// reach peers in connection order. fn may remove the visited session.
func (st *SessionStore) ForEach(fn func(*Session)) {
	ids := append([]uint64(nil), st.ids()...)
	for _, id := range ids {
		if s, ok := st.sessions[id]; ok {
			fn(s)
		}
	}
}

func (st *SessionStore) ids() []uint64 {
	if st.dirty {
		st.order = st.order[:0]
		for id := range st.sessions {
			st.order = append(st.order, id)
		}
		sort.Slice(st.order, func(i, j int) bool { return st.order[i] < st.order[j] })
		st.dirty = false
	}
	return st.order
}
