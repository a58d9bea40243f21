package httpapi

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/studylab/leitner/internal/quiz"
)

// learner bundles the per-learner state: the active quiz session and one
// hard pool per subject, so a pool built from one subject's misses never
// feeds a session for another. The mutex guards the session pointer and the
// pool map; transitions inside a session are serialized by the session's
// own lock.
type learner struct {
	id string

	mu      sync.Mutex
	pools   map[string]*quiz.HardPool
	session *quiz.Session
}

// hardPool returns the learner's pool for subject, creating it on first use.
func (l *learner) hardPool(subject string) *quiz.HardPool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[subject]
	if !ok {
		p = quiz.NewHardPool()
		l.pools[subject] = p
	}
	return p
}

func (l *learner) setSession(s *quiz.Session) {
	l.mu.Lock()
	l.session = s
	l.mu.Unlock()
}

func (l *learner) getSession() *quiz.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// registry tracks learners by ID for the lifetime of the process.
type registry struct {
	mu       sync.Mutex
	learners map[string]*learner
}

func newRegistry() *registry {
	return &registry{learners: make(map[string]*learner)}
}

// getOrCreate returns the learner for id, minting a fresh ID when empty.
func (r *registry) getOrCreate(id string) *learner {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = newLearnerID()
	}
	l, ok := r.learners[id]
	if !ok {
		l = &learner{id: id, pools: make(map[string]*quiz.HardPool)}
		r.learners[id] = l
	}
	return l
}

// get returns the learner for id if it exists.
func (r *registry) get(id string) (*learner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.learners[id]
	return l, ok
}

func newLearnerID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
