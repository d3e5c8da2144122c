// Package lock holds the advisory line-lock table. A lock marks a line as
// owned by one user so other editors can show it as taken; it does not by
// itself reject conflicting edits at the apply path.
package lock

import "sync"

// Table maps (docId, lineIndex) to the owning userId. Entries exist only
// while held: created on grant, destroyed on release or owner disconnect.
type Table struct {
	mu    sync.Mutex
	locks map[string]map[int]string // docId -> line index -> owner userId
}

func NewTable() *Table {
	return &Table{locks: make(map[string]map[int]string)}
}

// TryLock grants the line to userId if it is free or already theirs, and
// returns whoever owns the line afterwards. Callers broadcast the returned
// owner so every viewer converges on one truth about who holds the line.
func (t *Table) TryLock(docID string, line int, userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.locks[docID]
	if !ok {
		doc = make(map[int]string)
		t.locks[docID] = doc
	}

	if owner, held := doc[line]; held && owner != userID {
		return owner
	}
	doc[line] = userID
	return userID
}

// Unlock releases the line only if userId is the current owner, so a late or
// duplicate unlock from one user cannot release another's lock.
func (t *Table) Unlock(docID string, line int, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.locks[docID]
	if !ok {
		return
	}
	if doc[line] == userID {
		delete(doc, line)
	}
	if len(doc) == 0 {
		delete(t.locks, docID)
	}
}

// Owner returns the current owner of the line, or "" when unlocked.
func (t *Table) Owner(docID string, line int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locks[docID][line]
}

// ReleaseAllByUser removes every lock held by userId across all documents.
// Invoked on disconnect so no line stays locked by a departed user.
func (t *Table) ReleaseAllByUser(userID string) {
	if userID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for docID, doc := range t.locks {
		for line, owner := range doc {
			if owner == userID {
				delete(doc, line)
			}
		}
		if len(doc) == 0 {
			delete(t.locks, docID)
		}
	}
}
