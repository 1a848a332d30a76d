package identity

import "sync"

// changeStream holds an auth instance's current user and its listeners.
// Deliveries are serialized so listeners observe changes in order.
type changeStream struct {
	deliver   sync.Mutex
	mu        sync.Mutex
	current   *Identity
	listeners map[int]Listener
	nextID    int
}

func (s *changeStream) subscribe(listener Listener) func() {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[int]Listener)
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	current := cloneIdentity(s.current)
	s.mu.Unlock()

	listener(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *changeStream) set(id *Identity) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.current = cloneIdentity(id)
	listeners := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if l, ok := s.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(cloneIdentity(id))
	}
}

func (s *changeStream) user() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIdentity(s.current)
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
