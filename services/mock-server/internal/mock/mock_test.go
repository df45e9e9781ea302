package mock

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/mailbridge/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestConnectorFlow(t *testing.T) {
	var (
		mu       sync.Mutex
		received [][]byte
		sigOK    bool
	)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, body)
		sigOK = r.Header.Get(SignatureHeader) == Sign("secret", r.Header.Get(TimestampHeader), body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	conn := New()
	h := NewServer(conn, NewPusher("secret", logging.Discard()), "key").Router()

	w := doJSON(t, h, http.MethodPost, "/api/v1/connected_accounts", map[string]any{
		"user_id": "u1", "app": "gmail", "redirect_url": "https://app.example/done",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var initiated struct {
		RedirectURL string `json:"redirect_url"`
		AccountID   string `json:"connected_account_id"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initiated))
	assert.Equal(t, StatusInitiated, initiated.Status)
	assert.True(t, strings.HasSuffix(initiated.RedirectURL, "/oauth/authorize/"+initiated.AccountID))

	// Fetching before consent is rejected
	w = doJSON(t, h, http.MethodPost, "/api/v1/actions/GMAIL_FETCH_EMAILS/execute", map[string]any{
		"connected_account_id": initiated.AccountID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/oauth/authorize/"+initiated.AccountID, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.example/done", w.Header().Get("Location"))

	w = doJSON(t, h, http.MethodGet, "/api/v1/connected_accounts?user_ids=u1&app=gmail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []Account `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, StatusActive, list.Items[0].Status)

	// No trigger yet, so nothing is pushed
	w = doJSON(t, h, http.MethodPost, "/admin/accounts/"+initiated.AccountID+"/emails", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pushed":false`)

	w = doJSON(t, h, http.MethodPost, "/api/v1/actions/GMAIL_FETCH_EMAILS/execute", map[string]any{
		"connected_account_id": initiated.AccountID,
		"params":               map[string]any{"max_results": 10},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var exec struct {
		Data struct {
			Messages []map[string]any `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exec))
	require.Len(t, exec.Data.Messages, 1)
	assert.NotEmpty(t, exec.Data.Messages[0]["messageId"])

	w = doJSON(t, h, http.MethodPost, "/api/v1/triggers/enable", map[string]any{
		"connected_account_id": initiated.AccountID,
		"trigger_name":         "GMAIL_NEW_GMAIL_MESSAGE",
		"config":               map[string]any{"callback_url": callback.URL},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var trg Trigger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trg))
	assert.NotEmpty(t, trg.ID)

	w = doJSON(t, h, http.MethodPost, "/admin/accounts/"+initiated.AccountID+"/emails", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pushed":true`)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.True(t, sigOK)
	var push map[string]any
	require.NoError(t, json.Unmarshal(received[0], &push))
	assert.Equal(t, "u1", push["user_id"])
	assert.Equal(t, trg.ID, push["trigger_id"])
	data, ok := push["data"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["messageId"])
}

func TestInitiateReusesAccount(t *testing.T) {
	conn := New()
	a := conn.InitiateAccount("u1", "gmail", "")
	b := conn.InitiateAccount("u1", "gmail", "")
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, conn.Accounts(nil, "gmail"), 1)
}

func TestAPIKeyRequired(t *testing.T) {
	h := NewServer(New(), nil, "key").Router()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/connected_accounts", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownAction(t *testing.T) {
	h := NewServer(New(), nil, "key").Router()
	w := doJSON(t, h, http.MethodPost, "/api/v1/actions/GMAIL_SEND_EMAIL/execute", map[string]any{"connected_account_id": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateOnlyForActiveAccounts(t *testing.T) {
	conn := New()
	conn.rng = rand.New(rand.NewSource(1))
	pending := conn.InitiateAccount("u1", "gmail", "")
	active := conn.InitiateAccount("u2", "gmail", "")
	_, err := conn.Authorize(active.ID)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.Empty(t, conn.Generate(), "no trigger enabled")
	}

	_, err = conn.RecentEmails(pending.ID, 0)
	assert.ErrorIs(t, err, ErrNotActive)

	emails, err := conn.RecentEmails(active.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, emails)

	limited, err := conn.RecentEmails(active.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, emails[0]["messageId"], limited[0]["messageId"])
}
