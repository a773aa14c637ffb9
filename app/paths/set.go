package paths

import "sync/atomic"

// Set is the process-wide allow-list of site routes. Readers take a
// snapshot; refreshes replace the whole map atomically so no reader
// ever observes a partial list.
type Set struct {
	current atomic.Pointer[map[string]struct{}]
}

func NewSet() *Set {
	return &Set{}
}

// Ready reports whether at least one successful load happened. Before
// that, path-validated endpoints must answer "not ready" instead of a
// false 404.
func (s *Set) Ready() bool {
	return s.current.Load() != nil
}

// Contains reports whether path is in the current allow-list.
func (s *Set) Contains(path string) bool {
	m := s.current.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[path]
	return ok
}

// Snapshot returns the current paths. The slice is owned by the caller.
func (s *Set) Snapshot() []string {
	m := s.current.Load()
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(*m))
	for p := range *m {
		out = append(out, p)
	}
	return out
}

// Replace swaps in a new allow-list.
func (s *Set) Replace(entries []string) {
	m := make(map[string]struct{}, len(entries))
	for _, p := range entries {
		m[p] = struct{}{}
	}
	s.current.Store(&m)
}

func (s *Set) Len() int {
	m := s.current.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}
