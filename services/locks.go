package services

import "sync"

// tournamentLocks serializes mutations per tournament inside one process.
// The row lock taken by GetByIDForUpdate covers cross-process races; this
// keeps bracket advancement ordered without hitting the database first.
type tournamentLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newTournamentLocks() *tournamentLocks {
	return &tournamentLocks{locks: make(map[int]*sync.Mutex)}
}

func (l *tournamentLocks) lock(tournamentID int) func() {
	l.mu.Lock()
	m, ok := l.locks[tournamentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tournamentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
