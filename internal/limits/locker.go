package limits

import "sync"

// UserLocker is a keyed mutex. Holding a user's lock across the quota check
// and the insert of the PENDING row means concurrent requests from the same
// user are checked one at a time against up-to-date usage.
type UserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocker() *UserLocker {
	return &UserLocker{locks: make(map[string]*userLock)}
}

// Lock blocks until userId's lock is held and returns the function releasing it
func (l *UserLocker) Lock(userId string) func() {
	l.mu.Lock()
	lock, ok := l.locks[userId]
	if !ok {
		lock = &userLock{}
		l.locks[userId] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, userId)
		}
		l.mu.Unlock()
	}
}
