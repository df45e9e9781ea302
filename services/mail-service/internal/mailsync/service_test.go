package mailsync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailbridge/internal/logging"
	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/connector"
	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeConnector struct {
	mu         sync.Mutex
	messages   []models.RawMessage
	listErr    error
	pushErr    error
	account    connector.Account
	accountErr error
	listCalls  atomic.Int32
	block      chan struct{}

	pushCallback string
}

func (f *fakeConnector) StartAuthorization(ctx context.Context, userID, redirectURL string) (connector.Authorization, error) {
	return connector.Authorization{RedirectURL: "https://auth.example/" + userID, ConnectionID: "ca-pending", Status: "INITIATED"}, nil
}

func (f *fakeConnector) ConnectedAccount(ctx context.Context, userID string) (connector.Account, error) {
	if f.accountErr != nil {
		return connector.Account{}, f.accountErr
	}
	return f.account, nil
}

func (f *fakeConnector) ListRecentMessages(ctx context.Context, accountID, userID string, max int) ([]models.RawMessage, error) {
	f.listCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if max < len(f.messages) {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func (f *fakeConnector) EnablePush(ctx context.Context, accountID, userID, callbackURL string) (connector.Trigger, error) {
	if f.pushErr != nil {
		return connector.Trigger{}, f.pushErr
	}
	f.pushCallback = callbackURL
	return connector.Trigger{ID: "trg-" + accountID, Enabled: true}, nil
}

func newTestService(t *testing.T, conn *fakeConnector) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(context.Background()))

	svc := NewService(st, conn, Config{
		WebhookBaseURL: "https://hooks.example/",
		PageSize:       2,
	}, WithLogger(logging.Discard()), WithClock(func() time.Time { return fixedNow }))
	return svc, st
}

func activate(t *testing.T, svc *Service, userID string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.InitiateConnection(ctx, userID, "")
	require.NoError(t, err)
	_, err = svc.CompleteConnection(ctx, userID, "acct-1")
	require.NoError(t, err)
}

func TestSyncCountsCreatedAndUpdated(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{}
	svc, st := newTestService(t, fc)
	activate(t, svc, "")

	existing, _, err := st.UpsertMessage(ctx, models.Message{ExternalID: "m1", ReceivedAt: fixedNow})
	require.NoError(t, err)

	fc.messages = []models.RawMessage{
		{"messageId": "m1", "subject": "old one"},
		{"messageId": "m2", "subject": "new"},
		{"messageId": "m3", "subject": "newer"},
	}

	res, err := svc.Sync(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 3, Created: 2, Updated: 1}, res)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)

	got, err := svc.GetMessage(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "old one", got.Subject)
}

func TestSyncWithoutConnection(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{messages: []models.RawMessage{{"messageId": "m1"}}}
	svc, _ := newTestService(t, fc)

	_, err := svc.Sync(ctx, "", 0)
	assert.ErrorIs(t, err, ErrNoActiveConnection)
	assert.Equal(t, int32(0), fc.listCalls.Load())

	// Pending is not active either.
	_, err = svc.InitiateConnection(ctx, "", "")
	require.NoError(t, err)
	_, err = svc.Sync(ctx, "", 0)
	assert.ErrorIs(t, err, ErrNoActiveConnection)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestSyncSkipsPayloadsWithoutID(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{messages: []models.RawMessage{
		{"messageId": "m1"},
		{"subject": "no id"},
		{"messageId": "m2"},
	}}
	svc, _ := newTestService(t, fc)
	activate(t, svc, "")

	res, err := svc.Sync(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 3, Created: 2, Skipped: 1}, res)
}

func TestSyncConnectorFailure(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{listErr: errors.New("upstream down")}
	svc, _ := newTestService(t, fc)
	activate(t, svc, "")

	_, err := svc.Sync(ctx, "", 0)
	var connErr *ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "list messages", connErr.Op)
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{messages: []models.RawMessage{{"messageId": "m1"}, {"messageId": "m2"}}}
	svc, _ := newTestService(t, fc)
	activate(t, svc, "")

	first, err := svc.Sync(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := svc.Sync(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
}

func TestConcurrentSyncsShareOneRun(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{messages: []models.RawMessage{{"messageId": "m1"}}}
	svc, _ := newTestService(t, fc)
	activate(t, svc, "")

	fc.block = make(chan struct{})
	var wg sync.WaitGroup
	results := make([]SyncResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Sync(ctx, "", 0)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return fc.listCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(fc.block)
	wg.Wait()

	assert.Equal(t, int32(1), fc.listCalls.Load())
	for _, r := range results {
		assert.Equal(t, 1, r.Created)
	}
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{}
	svc, _ := newTestService(t, fc)

	payload := models.RawMessage{
		"type": "gmail_new_gmail_message",
		"data": map[string]any{"messageId": "w1", "user_id": "alice", "subject": "pushed"},
	}

	_, err := svc.HandleWebhook(ctx, "", payload)
	assert.ErrorIs(t, err, ErrNoActiveConnection)

	activate(t, svc, "alice")

	res, err := svc.HandleWebhook(ctx, "", payload)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, ActionCreated, res.Action())
	assert.Equal(t, "pushed", res.Message.Subject)

	again, err := svc.HandleWebhook(ctx, "alice", payload)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, again.Action())
	assert.Equal(t, res.Message.ID, again.Message.ID)

	_, err = svc.HandleWebhook(ctx, "alice", models.RawMessage{"subject": "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConnectionLifecycle(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{}
	svc, _ := newTestService(t, fc)

	status, err := svc.ConnectionStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.StateNotConnected, status.State)
	assert.Equal(t, DefaultUserID, status.UserID)

	_, err = svc.CompleteConnection(ctx, "", "acct-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started, err := svc.InitiateConnection(ctx, "", "http://app/done")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example/default-user", started.RedirectURL)
	assert.Equal(t, models.StatePendingAuthorization, started.Connection.State)

	conn, err := svc.CompleteConnection(ctx, "", "acct-1")
	require.NoError(t, err)
	assert.True(t, conn.IsActive())
	assert.Equal(t, "trg-acct-1", conn.TriggerID)
	assert.True(t, conn.TriggerEnabled)
	require.NotNil(t, conn.ConnectedAt)
	assert.Equal(t, "https://hooks.example/api/webhook/email/", fc.pushCallback)

	// Initiating again keeps the active link.
	again, err := svc.InitiateConnection(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, again.Connection.State)

	status, err = svc.ConnectionStatus(ctx, "")
	require.NoError(t, err)
	assert.True(t, status.IsActive())
}

func TestCompleteConnectionDetectsAccount(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{account: connector.Account{ID: "auto-1", Status: "ACTIVE"}}
	svc, _ := newTestService(t, fc)

	_, err := svc.InitiateConnection(ctx, "", "")
	require.NoError(t, err)

	conn, err := svc.CompleteConnection(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "auto-1", conn.ExternalAccountID)
}

func TestCompleteConnectionFailuresPersistNothing(t *testing.T) {
	ctx := context.Background()
	fc := &fakeConnector{accountErr: connector.ErrNoAccount}
	svc, _ := newTestService(t, fc)

	_, err := svc.InitiateConnection(ctx, "", "")
	require.NoError(t, err)

	_, err = svc.CompleteConnection(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)

	fc.pushErr = errors.New("trigger rejected")
	_, err = svc.CompleteConnection(ctx, "", "acct-1")
	var connErr *ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "enable push", connErr.Op)

	status, err := svc.ConnectionStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingAuthorization, status.State)
	assert.False(t, status.TriggerEnabled)
}

func TestListMessagesPages(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, &fakeConnector{})

	first, err := svc.ListMessages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Count)
	assert.Empty(t, first.Results)
	assert.False(t, first.HasNext)

	for i, id := range []string{"a", "b", "c"} {
		_, _, err := st.UpsertMessage(ctx, models.Message{ExternalID: id, ReceivedAt: fixedNow.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	p1, err := svc.ListMessages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p1.Count)
	assert.True(t, p1.HasNext)
	assert.False(t, p1.HasPrev)
	require.Len(t, p1.Results, 2)
	assert.Equal(t, "c", p1.Results[0].ExternalID)

	p2, err := svc.ListMessages(ctx, 2)
	require.NoError(t, err)
	assert.False(t, p2.HasNext)
	assert.True(t, p2.HasPrev)
	require.Len(t, p2.Results, 1)
	assert.Equal(t, "a", p2.Results[0].ExternalID)

	_, err = svc.ListMessages(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ListMessages(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReadAndStats(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, &fakeConnector{})

	msg, _, err := st.UpsertMessage(ctx, models.Message{ExternalID: "a", ReceivedAt: fixedNow})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		read, err := svc.MarkRead(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, read.IsRead)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 1, Unread: 0, Read: 1}, stats)

	_, err = svc.MarkRead(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
