package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"modmaild/pkg/ids"
	"modmaild/pkg/logger"
	"modmaild/pkg/models"
)

// Key layout:
//   thread:<threadID>                -> thread JSON
//   threaduser:<userID>:<threadID>   -> "" (per-user index, active and closed)
//   threadchan:<channelID>           -> threadID (active threads only)
//   msg:<messageID>                  -> message JSON

var db *pebble.DB
var dbPath string

// genID is swappable so tests can pre-seed a collision and assert the
// creation path regenerates.
var genID = ids.New

// ErrNotFound is returned for point lookups that match no record.
var ErrNotFound = errors.New("record not found")

// Open opens (or creates) the Pebble database at the given path and keeps a
// global handle for package-level usage.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

func threadKey(id string) []byte    { return []byte("thread:" + id) }
func userIdxKey(u, t string) []byte { return []byte("threaduser:" + u + ":" + t) }
func chanIdxKey(c string) []byte    { return []byte("threadchan:" + c) }
func messageKey(id string) []byte   { return []byte("msg:" + id) }

func hasKey(key []byte) (bool, error) {
	_, closer, err := db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func getJSON(key []byte, out any) error {
	v, closer, err := db.Get(key)
	if err == pebble.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(v, out)
}

// CreateThread assigns a fresh unique thread ID, persists the thread record
// together with its user and channel index entries in one atomic batch, and
// returns the stored thread. The new thread starts active with an empty
// message sequence.
func CreateThread(userID, channelID string) (models.Thread, error) {
	var t models.Thread
	if db == nil {
		return t, notOpened()
	}
	var id string
	for {
		id = genID()
		exists, err := hasKey(threadKey(id))
		if err != nil {
			return t, err
		}
		if !exists {
			break
		}
		logger.Warn("thread_id_collision", "id", id)
	}
	t = models.Thread{
		ID:        id,
		UserID:    userID,
		ChannelID: channelID,
		IsActive:  true,
		Messages:  []string{},
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(t)
	if err != nil {
		return t, fmt.Errorf("marshal thread: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(threadKey(id), data, nil); err != nil {
		return t, err
	}
	if err := b.Set(userIdxKey(userID, id), nil, nil); err != nil {
		return t, err
	}
	if err := b.Set(chanIdxKey(channelID), []byte(id), nil); err != nil {
		return t, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("create_thread_failed", "id", id, "error", err)
		return t, err
	}
	logger.Info("thread_created", "id", id, "user", userID, "channel", channelID)
	return t, nil
}

// SaveThread persists a mutated thread record and keeps the channel index in
// step: closed threads no longer resolve by channel.
func SaveThread(t models.Thread) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(threadKey(t.ID), data, nil); err != nil {
		return err
	}
	if !t.IsActive {
		if err := b.Delete(chanIdxKey(t.ChannelID), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_thread_failed", "id", t.ID, "error", err)
		return err
	}
	return nil
}

// GetThread loads a thread by ID. Returns ErrNotFound when absent.
func GetThread(id string) (models.Thread, error) {
	var t models.Thread
	if db == nil {
		return t, notOpened()
	}
	if err := getJSON(threadKey(id), &t); err != nil {
		return t, err
	}
	return t, nil
}

// FindActiveThreadByUser returns the user's active thread, if any.
func FindActiveThreadByUser(userID string) (models.Thread, bool, error) {
	var zero models.Thread
	if db == nil {
		return zero, false, notOpened()
	}
	threads, err := ListThreadsByUser(userID)
	if err != nil {
		return zero, false, err
	}
	for _, t := range threads {
		if t.IsActive {
			return t, true, nil
		}
	}
	return zero, false, nil
}

// FindActiveThreadByChannel resolves the active thread whose destination
// channel is channelID, if any.
func FindActiveThreadByChannel(channelID string) (models.Thread, bool, error) {
	var zero models.Thread
	if db == nil {
		return zero, false, notOpened()
	}
	v, closer, err := db.Get(chanIdxKey(channelID))
	if err == pebble.ErrNotFound {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	id := string(v)
	_ = closer.Close()
	t, err := GetThread(id)
	if err == ErrNotFound {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	if !t.IsActive {
		return zero, false, nil
	}
	return t, true, nil
}

// CountClosedThreads returns the number of closed threads for a user.
func CountClosedThreads(userID string) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	threads, err := ListThreadsByUser(userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range threads {
		if !t.IsActive {
			n++
		}
	}
	return n, nil
}

// ListThreadsByUser returns every thread ever opened by the user, in
// creation-key order.
func ListThreadsByUser(userID string) ([]models.Thread, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("threaduser:" + userID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		id := string(iter.Key()[len(prefix):])
		t, err := GetThread(id)
		if err == ErrNotFound {
			// index entry without a record; skip rather than fail the scan
			logger.Warn("thread_index_dangling", "user", userID, "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListActiveThreads returns every active thread. Used by the reconciliation
// sweep; the full-prefix scan is fine at modmail volumes.
func ListActiveThreads() ([]models.Thread, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("thread:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var t models.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			logger.Warn("thread_record_invalid", "key", string(iter.Key()), "error", err)
			continue
		}
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreateMessage assigns a fresh unique message ID and persists the record.
func CreateMessage(m models.Message) (models.Message, error) {
	if db == nil {
		return m, notOpened()
	}
	var id string
	for {
		id = genID()
		exists, err := hasKey(messageKey(id))
		if err != nil {
			return m, err
		}
		if !exists {
			break
		}
		logger.Warn("message_id_collision", "id", id)
	}
	m.ID = id
	data, err := json.Marshal(m)
	if err != nil {
		return m, fmt.Errorf("marshal message: %w", err)
	}
	if err := db.Set(messageKey(id), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "id", id, "error", err)
		return m, err
	}
	return m, nil
}

// GetMessage loads a message by ID. Returns ErrNotFound when absent.
func GetMessage(id string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpened()
	}
	if err := getJSON(messageKey(id), &m); err != nil {
		return m, err
	}
	return m, nil
}

// ListMessages returns a thread's messages in conversation order, resolving
// the thread's message ID sequence.
func ListMessages(threadID string) ([]models.Message, error) {
	t, err := GetThread(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(t.Messages))
	for _, id := range t.Messages {
		m, err := GetMessage(id)
		if err == ErrNotFound {
			logger.Warn("message_reference_dangling", "thread", threadID, "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
