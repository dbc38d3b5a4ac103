package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"modmaild/pkg/models"
	"modmaild/pkg/store"
	"modmaild/pkg/transport"
)

type delivery struct {
	target string // "user" or "channel"
	id     string
	c      transport.Content
}

// fakeTransport records every outbound call so routing decisions can be
// asserted exactly.
type fakeTransport struct {
	deliveries []delivery
	deleted    []string
	channels   int

	failUser      bool
	failChannel   bool
	failProvision bool
}

func (f *fakeTransport) SendToUser(_ context.Context, userID string, c transport.Content) error {
	if f.failUser {
		return fmt.Errorf("%w: dms closed", transport.ErrDeliveryFailed)
	}
	f.deliveries = append(f.deliveries, delivery{target: "user", id: userID, c: c})
	return nil
}

func (f *fakeTransport) SendToChannel(_ context.Context, channelID string, c transport.Content) error {
	if f.failChannel {
		return fmt.Errorf("%w: %s", transport.ErrChannelNotFound, channelID)
	}
	f.deliveries = append(f.deliveries, delivery{target: "channel", id: channelID, c: c})
	return nil
}

func (f *fakeTransport) CreateChannel(_ context.Context, nameHint, parent string) (string, error) {
	if f.failProvision {
		return "", fmt.Errorf("%w: quota", transport.ErrProvisioningFailed)
	}
	f.channels++
	return fmt.Sprintf("chan-%d", f.channels), nil
}

func (f *fakeTransport) DeleteChannel(_ context.Context, channelID string) error {
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakeTransport) ResolveUser(_ context.Context, userID string) (transport.UserInfo, error) {
	return transport.UserInfo{
		ID:        userID,
		Username:  "name-" + userID,
		CreatedAt: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (f *fakeTransport) HasChannel(_ context.Context, channelID string) (bool, error) {
	return true, nil
}

func (f *fakeTransport) count(target string) int {
	n := 0
	for _, d := range f.deliveries {
		if d.target == target {
			n++
		}
	}
	return n
}

func (f *fakeTransport) reset() { f.deliveries = nil }

func newTestManager(t *testing.T) (*Manager, *fakeTransport) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	tr := &fakeTransport{}
	return New(tr, "category-1"), tr
}

func userMessage(content string) models.RawMessage {
	return models.RawMessage{ID: "origin-1", CreatedAt: time.Now(), Content: content}
}

func alice() models.Author {
	return models.Author{ID: "alice", Name: "Alice"}
}

func modReply(content string, modnote bool) models.Reply {
	return models.Reply{
		MessageID: "interaction-1",
		CreatedAt: time.Now(),
		Author:    models.Author{ID: "mod-1", Name: "Mod"},
		Content:   content,
		IsModnote: modnote,
	}
}

func TestGetOrCreateThreadNewUser(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if h.ThreadID == "" {
		t.Fatalf("expected non-empty thread id")
	}
	th, err := store.GetThread(h.ThreadID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if !th.IsActive {
		t.Fatalf("new thread must be active")
	}

	// welcome to the user, summary to the new channel
	if got := tr.count("user"); got != 1 {
		t.Fatalf("expected 1 user delivery (welcome), got %d", got)
	}
	if got := tr.count("channel"); got != 1 {
		t.Fatalf("expected 1 channel delivery (summary), got %d", got)
	}
	summary := tr.deliveries[1]
	if summary.target != "channel" || summary.c.Title != "Thread Info" {
		t.Fatalf("expected summary notice to channel, got %+v", summary)
	}
	if !strings.Contains(summary.c.Body, "previous threads**: 0") {
		t.Fatalf("expected 0 previous threads in summary, got %q", summary.c.Body)
	}
}

func TestGetOrCreateThreadReusesActive(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h1, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("first get or create: %v", err)
	}
	tr.reset()

	h2, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if h1.ThreadID != h2.ThreadID {
		t.Fatalf("expected same thread, got %s and %s", h1.ThreadID, h2.ThreadID)
	}
	if tr.channels != 1 {
		t.Fatalf("expected a single provisioned channel, got %d", tr.channels)
	}
	if len(tr.deliveries) != 0 {
		t.Fatalf("reuse must not resend initial notices, got %d deliveries", len(tr.deliveries))
	}
}

func TestGetOrCreateThreadProvisioningFailure(t *testing.T) {
	m, tr := newTestManager(t)
	tr.failProvision = true

	if _, err := m.GetOrCreateThread(context.Background(), "alice"); !errors.Is(err, transport.ErrProvisioningFailed) {
		t.Fatalf("expected provisioning failure, got %v", err)
	}
	if _, ok, _ := store.FindActiveThreadByUser("alice"); ok {
		t.Fatalf("no thread must exist after failed provisioning")
	}
}

func TestAppendUserMessageRouting(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	tr.reset()

	if err := m.AppendUserMessage(ctx, h, userMessage("hello"), alice()); err != nil {
		t.Fatalf("append user message: %v", err)
	}

	// exactly one delivery, to the channel; never echoed to the sender
	if got := tr.count("channel"); got != 1 {
		t.Fatalf("expected 1 channel delivery, got %d", got)
	}
	if got := tr.count("user"); got != 0 {
		t.Fatalf("expected 0 user deliveries, got %d", got)
	}
	if tr.deliveries[0].c.Body != "hello" {
		t.Fatalf("expected relayed content, got %q", tr.deliveries[0].c.Body)
	}

	msgs, err := store.ListMessages(h.ThreadID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.IsMod || got.IsModnote || got.Content != "hello" || got.AuthorID != "alice" {
		t.Fatalf("unexpected persisted message: %+v", got)
	}
	if got.CreatedAt == "" {
		t.Fatalf("expected ISO timestamp on persisted message")
	}
}

func TestAppendModMessageRouting(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	tr.reset()

	if err := m.AppendModMessage(ctx, h, modReply("fixed", false)); err != nil {
		t.Fatalf("append mod message: %v", err)
	}

	// exactly two deliveries: channel copy and user copy
	if got := tr.count("channel"); got != 1 {
		t.Fatalf("expected 1 channel delivery, got %d", got)
	}
	if got := tr.count("user"); got != 1 {
		t.Fatalf("expected 1 user delivery, got %d", got)
	}

	msgs, _ := store.ListMessages(h.ThreadID)
	if len(msgs) != 1 || !msgs[0].IsMod || msgs[0].IsModnote {
		t.Fatalf("expected persisted mod message, got %+v", msgs)
	}
}

func TestModnoteNeverMirrored(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	tr.reset()

	if err := m.AppendModMessage(ctx, h, modReply("watching this user", true)); err != nil {
		t.Fatalf("append modnote: %v", err)
	}
	if len(tr.deliveries) != 0 {
		t.Fatalf("modnote must not be delivered anywhere, got %d deliveries", len(tr.deliveries))
	}
	msgs, _ := store.ListMessages(h.ThreadID)
	if len(msgs) != 1 || !msgs[0].IsModnote {
		t.Fatalf("expected persisted modnote, got %+v", msgs)
	}
}

func TestEmptyUserContentPlaceholder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := m.AppendUserMessage(ctx, h, userMessage("   \t "), alice()); err != nil {
		t.Fatalf("append user message: %v", err)
	}
	msgs, _ := store.ListMessages(h.ThreadID)
	if len(msgs) != 1 || msgs[0].Content != emptyMessagePlaceholder {
		t.Fatalf("expected placeholder content, got %+v", msgs)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := m.CloseThread(ctx, h); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := m.AppendUserMessage(ctx, h, userMessage("late"), alice()); !errors.Is(err, ErrThreadClosed) {
		t.Fatalf("expected ErrThreadClosed, got %v", err)
	}
	if err := m.AppendModMessage(ctx, h, modReply("late", false)); !errors.Is(err, ErrThreadClosed) {
		t.Fatalf("expected ErrThreadClosed, got %v", err)
	}
}

func TestCloseThread(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	th, _ := store.GetThread(h.ThreadID)
	tr.reset()

	if err := m.CloseThread(ctx, h); err != nil {
		t.Fatalf("close: %v", err)
	}
	closed, _ := store.GetThread(h.ThreadID)
	if closed.IsActive {
		t.Fatalf("thread must be inactive after close")
	}
	if len(tr.deleted) != 1 || tr.deleted[0] != th.ChannelID {
		t.Fatalf("expected channel %s deleted, got %v", th.ChannelID, tr.deleted)
	}
	if got := tr.count("user"); got != 1 {
		t.Fatalf("expected closing notice to user, got %d deliveries", got)
	}
	if tr.deliveries[0].c.Title != "Thread closed" {
		t.Fatalf("expected closing notice, got %+v", tr.deliveries[0].c)
	}
}

func TestCloseAlreadyClosed(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := m.CloseThread(ctx, h); err != nil {
		t.Fatalf("first close: %v", err)
	}
	tr.reset()
	deleted := len(tr.deleted)

	if err := m.CloseThread(ctx, h); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if len(tr.deliveries) != 0 || len(tr.deleted) != deleted {
		t.Fatalf("second close must have no side effects")
	}
}

func TestCloseUnreachableUserRedirects(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	th, _ := store.GetThread(h.ThreadID)
	tr.reset()
	tr.failUser = true

	if err := m.CloseThread(ctx, h); err != nil {
		t.Fatalf("close must not fail on unreachable user: %v", err)
	}
	closed, _ := store.GetThread(h.ThreadID)
	if closed.IsActive {
		t.Fatalf("thread must be inactive after close")
	}
	if len(tr.deleted) != 1 || tr.deleted[0] != th.ChannelID {
		t.Fatalf("channel must still be deleted, got %v", tr.deleted)
	}
	// the failed user notice lands in the channel before deletion
	if got := tr.count("channel"); got != 1 {
		t.Fatalf("expected redirected notice in channel, got %d", got)
	}
	if tr.deliveries[0].c.Title != "Failed to send message to user" {
		t.Fatalf("expected redirect notice, got %+v", tr.deliveries[0].c)
	}
}

func TestModReplyUnreachableUserRedirects(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	tr.reset()
	tr.failUser = true

	if err := m.AppendModMessage(ctx, h, modReply("fixed", false)); err != nil {
		t.Fatalf("append must not fail on unreachable user: %v", err)
	}
	// channel copy plus the redirected failure notice
	if got := tr.count("channel"); got != 2 {
		t.Fatalf("expected 2 channel deliveries, got %d", got)
	}
	if got := tr.count("user"); got != 0 {
		t.Fatalf("expected no user deliveries, got %d", got)
	}
}

func TestAppendChannelGonePropagates(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	tr.failChannel = true

	err = m.AppendUserMessage(ctx, h, userMessage("hello"), alice())
	if !errors.Is(err, transport.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestSecondThreadAfterClose(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	h1, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := m.CloseThread(ctx, h1); err != nil {
		t.Fatalf("close: %v", err)
	}
	tr.reset()

	h2, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if h2.ThreadID == h1.ThreadID {
		t.Fatalf("closed thread must not be reopened")
	}
	// the new summary counts the closed thread
	var summary *delivery
	for i := range tr.deliveries {
		if tr.deliveries[i].c.Title == "Thread Info" {
			summary = &tr.deliveries[i]
		}
	}
	if summary == nil {
		t.Fatalf("expected a summary notice, got %+v", tr.deliveries)
	}
	if !strings.Contains(summary.c.Body, "previous threads**: 1") {
		t.Fatalf("expected 1 previous thread in summary, got %q", summary.c.Body)
	}
}

func TestThreadForChannel(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	h, err := m.GetOrCreateThread(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	th, _ := store.GetThread(h.ThreadID)

	got, err := m.ThreadForChannel(ctx, th.ChannelID)
	if err != nil {
		t.Fatalf("thread for channel: %v", err)
	}
	if got.ThreadID != h.ThreadID {
		t.Fatalf("expected %s, got %s", h.ThreadID, got.ThreadID)
	}

	if _, err := m.ThreadForChannel(ctx, "not-a-thread-channel"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestGetOrCreateThreadConcurrent(t *testing.T) {
	m, tr := newTestManager(t)
	ctx := context.Background()

	const n = 8
	handles := make([]Handle, n)
	errs := make([]error, n)
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			handles[i], errs[i] = m.GetOrCreateThread(ctx, "alice")
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if handles[i].ThreadID != handles[0].ThreadID {
			t.Fatalf("racing creations produced distinct threads: %s vs %s", handles[i].ThreadID, handles[0].ThreadID)
		}
	}
	if tr.channels != 1 {
		t.Fatalf("expected exactly one provisioned channel, got %d", tr.channels)
	}
}
