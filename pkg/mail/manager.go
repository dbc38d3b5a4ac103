// Package mail implements the modmail thread lifecycle: when a thread is
// created versus reused, how messages are persisted and routed between the
// end user and the staff channel, and the one-way OPEN -> CLOSED transition.
// All thread and message mutation goes through the Manager.
package mail

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"modmaild/pkg/logger"
	"modmaild/pkg/models"
	"modmaild/pkg/store"
	"modmaild/pkg/telemetry"
	"modmaild/pkg/transport"
)

// Handle references a thread by ID. Handles carry no state: every operation
// reloads the authoritative record before mutating it, so a handle can go
// stale (the thread may close underneath it) without corrupting anything.
type Handle struct {
	ThreadID string
}

// Manager is the single authority for thread state transitions and message
// routing.
type Manager struct {
	tr transport.Transport
	// category is the parent the per-thread channels are provisioned under.
	category string

	// per-user locks serialize getOrCreate so two near-simultaneous inbound
	// messages cannot both observe "no active thread" and double-provision
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Manager delivering through tr and provisioning thread
// channels under parentCategory.
func New(tr transport.Transport, parentCategory string) *Manager {
	return &Manager{tr: tr, category: parentCategory, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[userID]; ok {
		return l
	}
	l := &sync.Mutex{}
	m.locks[userID] = l
	return l
}

// GetOrCreateThread returns a handle to the user's active thread, creating
// one (and provisioning its destination channel) when none exists. Only the
// newly created case sends the initial notices: a welcome to the user and a
// summary to the new channel.
func (m *Manager) GetOrCreateThread(ctx context.Context, userID string) (Handle, error) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if th, ok, err := store.FindActiveThreadByUser(userID); err != nil {
		return Handle{}, err
	} else if ok {
		return Handle{ThreadID: th.ID}, nil
	}

	info, err := m.tr.ResolveUser(ctx, userID)
	if err != nil {
		return Handle{}, err
	}
	channelID, err := m.tr.CreateChannel(ctx, info.Username, m.category)
	if err != nil {
		return Handle{}, err
	}
	th, err := store.CreateThread(userID, channelID)
	if err != nil {
		return Handle{}, err
	}
	telemetry.ThreadsCreated.Inc()

	// The thread is committed; initial notices are best-effort from here.
	m.notifyUser(ctx, th, welcomeNotice())

	previous, err := store.CountClosedThreads(userID)
	if err != nil {
		logger.Error("count_closed_threads_failed", "user", userID, "error", err)
		previous = 0
	}
	if err := m.tr.SendToChannel(ctx, th.ChannelID, summaryNotice(info, previous)); err != nil {
		telemetry.DeliveryFailures.WithLabelValues("channel").Inc()
		logger.Error("summary_notice_failed", "thread", th.ID, "channel", th.ChannelID, "error", err)
	}
	return Handle{ThreadID: th.ID}, nil
}

// ThreadForChannel resolves the active thread whose destination channel is
// channelID. Returns ErrThreadNotFound when the channel is not a thread
// channel, so callers can render a specific message instead of a fault.
func (m *Manager) ThreadForChannel(ctx context.Context, channelID string) (Handle, error) {
	th, ok, err := store.FindActiveThreadByChannel(channelID)
	if err != nil {
		return Handle{}, err
	}
	if !ok {
		return Handle{}, fmt.Errorf("%w: channel %s", ErrThreadNotFound, channelID)
	}
	return Handle{ThreadID: th.ID}, nil
}

// AppendUserMessage appends an end-user message to the thread. Blank or
// whitespace-only content is normalized to a placeholder.
func (m *Manager) AppendUserMessage(ctx context.Context, h Handle, raw models.RawMessage, author models.Author) error {
	content := raw.Content
	if strings.TrimSpace(content) == "" {
		content = emptyMessagePlaceholder
	}
	msg := models.Message{
		OriginID:  raw.ID,
		AuthorID:  author.ID,
		IsMod:     false,
		IsModnote: false,
		CreatedAt: isoTimestamp(raw.CreatedAt),
		Content:   content,
	}
	return m.appendMessage(ctx, h, msg, author)
}

// AppendModMessage appends a staff reply (or, when reply.IsModnote is set, an
// internal note) to the thread.
func (m *Manager) AppendModMessage(ctx context.Context, h Handle, reply models.Reply) error {
	msg := models.Message{
		OriginID:  reply.MessageID,
		AuthorID:  reply.Author.ID,
		IsMod:     true,
		IsModnote: reply.IsModnote,
		CreatedAt: isoTimestamp(reply.CreatedAt),
		Content:   reply.Content,
	}
	return m.appendMessage(ctx, h, msg, reply.Author)
}

// appendMessage is the shared append routine: reload the thread, refuse
// closed threads, persist the message, grow the thread's sequence, then
// route. Modnotes are never mirrored anywhere. Everything else always goes
// to the destination channel, and additionally to the end user only when it
// originated from staff.
func (m *Manager) appendMessage(ctx context.Context, h Handle, msg models.Message, author models.Author) error {
	th, err := store.GetThread(h.ThreadID)
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, h.ThreadID)
	}
	if err != nil {
		return err
	}
	if !th.IsActive {
		return fmt.Errorf("%w: %s", ErrThreadClosed, th.ID)
	}

	saved, err := store.CreateMessage(msg)
	if err != nil {
		return err
	}
	th.Messages = append(th.Messages, saved.ID)
	if err := store.SaveThread(th); err != nil {
		return err
	}
	telemetry.MessagesAppended.WithLabelValues(origin(saved)).Inc()
	logger.Info("message_appended", "thread", th.ID, "message", saved.ID, "origin", origin(saved))

	if saved.IsModnote {
		return nil
	}

	c := messageContent(saved, author)
	if err := m.tr.SendToChannel(ctx, th.ChannelID, c); err != nil {
		telemetry.DeliveryFailures.WithLabelValues("channel").Inc()
		return err
	}
	if saved.IsMod {
		m.notifyUser(ctx, th, c)
	}
	return nil
}

// CloseThread flips the thread inactive, notifies the user, and removes the
// destination channel. The state change is not rolled back if a subsequent
// notification or deletion fails.
func (m *Manager) CloseThread(ctx context.Context, h Handle) error {
	return m.close(ctx, h.ThreadID, "command", true)
}

// CloseAbandoned closes a thread whose destination channel disappeared
// out-of-band. No channel deletion is attempted and the user notice goes
// straight to the DM surface.
func (m *Manager) CloseAbandoned(ctx context.Context, threadID string) error {
	return m.close(ctx, threadID, "reconcile", false)
}

func (m *Manager) close(ctx context.Context, threadID, cause string, removeChannel bool) error {
	th, err := store.GetThread(threadID)
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return err
	}
	if !th.IsActive {
		return fmt.Errorf("%w: %s", ErrAlreadyClosed, th.ID)
	}
	th.IsActive = false
	th.ClosedTS = time.Now().UTC().UnixNano()
	if err := store.SaveThread(th); err != nil {
		return err
	}
	telemetry.ThreadsClosed.WithLabelValues(cause).Inc()
	logger.Info("thread_closed", "thread", th.ID, "user", th.UserID, "cause", cause)

	// Notify before deleting the channel so the unreachable-user fallback
	// still has somewhere to land.
	if removeChannel {
		m.notifyUser(ctx, th, closedNotice())
		if err := m.tr.DeleteChannel(ctx, th.ChannelID); err != nil {
			return err
		}
		return nil
	}
	if err := m.tr.SendToUser(ctx, th.UserID, closedNotice()); err != nil {
		telemetry.DeliveryFailures.WithLabelValues("user").Inc()
		logger.Warn("close_notice_undeliverable", "thread", th.ID, "user", th.UserID, "error", err)
	}
	return nil
}

// notifyUser delivers content to the end user. An unreachable user is never
// fatal: the failure is redirected as a notice to the thread channel,
// best-effort.
func (m *Manager) notifyUser(ctx context.Context, th models.Thread, c transport.Content) {
	err := m.tr.SendToUser(ctx, th.UserID, c)
	if err == nil {
		return
	}
	telemetry.DeliveryFailures.WithLabelValues("user").Inc()
	logger.Warn("user_delivery_failed", "thread", th.ID, "user", th.UserID, "error", err)
	if cerr := m.tr.SendToChannel(ctx, th.ChannelID, undeliverableNotice(err)); cerr != nil {
		logger.Warn("undeliverable_notice_failed", "thread", th.ID, "channel", th.ChannelID, "error", cerr)
	}
}

func origin(m models.Message) string {
	switch {
	case m.IsModnote:
		return "modnote"
	case m.IsMod:
		return "mod"
	default:
		return "user"
	}
}

func isoTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
