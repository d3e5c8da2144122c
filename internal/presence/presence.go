// Package presence tracks which users are online and which document each one
// is viewing, in Redis. It is an optional layer: the sync core runs fine
// with no Redis configured, so every caller nil-checks the manager.
package presence

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineTTL = 60 * time.Second
	opTimeout = 2 * time.Second
)

// Manager wraps the Redis client for presence bookkeeping.
type Manager struct {
	client *redis.Client
}

// NewManager connects and pings; a presence manager that cannot reach Redis
// is not worth having.
func NewManager(addr, password string, db int) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Presence] connected to %s", addr)
	return &Manager{client: client}, nil
}

func userKey(userID string) string {
	return "presence:user:" + userID
}

func viewersKey(docID string) string {
	return "doc:" + docID + ":viewers"
}

// SetOnline marks the user online with a TTL; a connection that vanishes
// without cleanup ages out on its own.
func (m *Manager) SetOnline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := m.client.Set(ctx, userKey(userID), time.Now().UnixMilli(), onlineTTL).Err(); err != nil {
		log.Printf("[Presence] set online failed for %s: %v", userID, err)
	}
}

// SetOffline removes the user's online marker.
func (m *Manager) SetOffline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := m.client.Del(ctx, userKey(userID)).Err(); err != nil {
		log.Printf("[Presence] set offline failed for %s: %v", userID, err)
	}
}

// AddViewer records the user as a viewer of the document.
func (m *Manager) AddViewer(docID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := m.client.SAdd(ctx, viewersKey(docID), userID).Err(); err != nil {
		log.Printf("[Presence] add viewer failed for doc %s: %v", docID, err)
	}
}

// RemoveViewer drops the user from the document's viewer set.
func (m *Manager) RemoveViewer(docID, userID string) {
	if docID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := m.client.SRem(ctx, viewersKey(docID), userID).Err(); err != nil {
		log.Printf("[Presence] remove viewer failed for doc %s: %v", docID, err)
	}
}

// Viewers returns the users currently viewing the document.
func (m *Manager) Viewers(docID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return m.client.SMembers(ctx, viewersKey(docID)).Result()
}

// ClearViewers removes the whole viewer set, for when a document is deleted.
func (m *Manager) ClearViewers(docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := m.client.Del(ctx, viewersKey(docID)).Err(); err != nil {
		log.Printf("[Presence] clear viewers failed for doc %s: %v", docID, err)
	}
}

// Close closes the Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}
