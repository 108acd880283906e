package session

import "sync"

// Registry tracks the live socket per user within this process. A user
// opening a second socket displaces the first; the disconnect snowflake in
// the KV store covers the cross-process case.
type Registry struct {
	mu      sync.Mutex
	sockets map[string]*Socket
}

func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string]*Socket)}
}

// register installs s as the user's live socket. A previous socket is closed
// and waited out so its disconnect snowflake lands before s writes its own;
// the stale grace timer then sees the mismatch and stands down.
func (r *Registry) register(s *Socket) {
	r.mu.Lock()
	prev := r.sockets[s.userID]
	r.sockets[s.userID] = s
	r.mu.Unlock()
	if prev != nil {
		prev.closeConn("replaced by new connection")
		<-prev.done
	}
}

func (r *Registry) unregister(s *Socket) {
	r.mu.Lock()
	if r.sockets[s.userID] == s {
		delete(r.sockets, s.userID)
	}
	r.mu.Unlock()
}
