// Package mock is an in-memory stand-in for the managed mail connector. It
// links fake Gmail accounts, generates mail for them and pushes new messages
// to enabled trigger callbacks.
package mock

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stoik/mailbridge/internal/models"
)

const (
	StatusInitiated = "INITIATED"
	StatusActive    = "ACTIVE"
)

var (
	ErrUnknownAccount = errors.New("unknown connected account")
	ErrNotActive      = errors.New("connected account is not active")
)

var (
	firstNames = []string{"John", "Jane", "Bob", "Alice", "Charlie", "Diana", "Eve", "Frank"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis"}
	domains    = []string{"example.com", "company.com", "business.org", "enterprise.net"}
	subjects   = []string{
		"Meeting tomorrow",
		"Project update",
		"Budget review",
		"Team lunch",
		"Quarterly report",
		"Client feedback",
		"Urgent: Action required",
		"Follow up",
	}
)

// Account is a connected account as the connector reports it.
type Account struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	App         string    `json:"app"`
	Status      string    `json:"status"`
	Email       string    `json:"email"`
	RedirectURL string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Trigger is a push subscription on an account.
type Trigger struct {
	ID          string `json:"trigger_id"`
	AccountID   string `json:"connected_account_id"`
	Name        string `json:"trigger_name"`
	CallbackURL string `json:"callback_url"`
	Status      string `json:"status"`
}

// Push is one message delivered to a trigger callback.
type Push struct {
	Trigger Trigger
	UserID  string
	Message models.RawMessage
}

// Connector holds all mock state. It is safe for concurrent use.
type Connector struct {
	mu       sync.RWMutex
	accounts map[string]*Account // by account id
	emails   map[string][]models.RawMessage
	triggers map[string]Trigger // by account id
	counter  int
	rng      *rand.Rand
	now      func() time.Time
}

func New() *Connector {
	return &Connector{
		accounts: make(map[string]*Account),
		emails:   make(map[string][]models.RawMessage),
		triggers: make(map[string]Trigger),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// InitiateAccount starts an authorization for userID. An existing account
// for the same user is reused.
func (c *Connector) InitiateAccount(userID, app, redirectURL string) *Account {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, acct := range c.accounts {
		if acct.UserID == userID && acct.App == app {
			if redirectURL != "" {
				acct.RedirectURL = redirectURL
			}
			cp := *acct
			return &cp
		}
	}

	idx := c.counter
	c.counter++
	acct := &Account{
		ID:          "ca_" + uuid.NewString(),
		UserID:      userID,
		App:         app,
		Status:      StatusInitiated,
		Email:       fmt.Sprintf("%s.%s.%d@%s", strings.ToLower(firstNames[idx%len(firstNames)]), strings.ToLower(lastNames[idx%len(lastNames)]), idx, domains[idx%len(domains)]),
		RedirectURL: redirectURL,
		CreatedAt:   c.now().UTC(),
	}
	c.accounts[acct.ID] = acct
	c.emails[acct.ID] = make([]models.RawMessage, 0)
	cp := *acct
	return &cp
}

// Authorize marks the account as active, as if the user finished OAuth.
func (c *Connector) Authorize(accountID string) (*Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[accountID]
	if !ok {
		return nil, ErrUnknownAccount
	}
	acct.Status = StatusActive
	cp := *acct
	return &cp, nil
}

// Accounts returns the accounts of the given users for app, oldest first.
// An empty user list matches everyone.
func (c *Connector) Accounts(userIDs []string, app string) []Account {
	c.mu.RLock()
	defer c.mu.RUnlock()

	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}

	out := make([]Account, 0)
	for _, acct := range c.accounts {
		if len(want) > 0 && !want[acct.UserID] {
			continue
		}
		if app != "" && acct.App != app {
			continue
		}
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RecentEmails returns up to max messages for an active account, newest first.
func (c *Connector) RecentEmails(accountID string, max int) ([]models.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	acct, ok := c.accounts[accountID]
	if !ok {
		return nil, ErrUnknownAccount
	}
	if acct.Status != StatusActive {
		return nil, ErrNotActive
	}

	emails := c.emails[accountID]
	out := make([]models.RawMessage, 0, len(emails))
	for i := len(emails) - 1; i >= 0; i-- {
		if max > 0 && len(out) >= max {
			break
		}
		out = append(out, emails[i])
	}
	return out, nil
}

// EnableTrigger subscribes callbackURL to new messages of an active account.
// Enabling again replaces the callback and keeps the trigger id.
func (c *Connector) EnableTrigger(accountID, name, callbackURL string) (Trigger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[accountID]
	if !ok {
		return Trigger{}, ErrUnknownAccount
	}
	if acct.Status != StatusActive {
		return Trigger{}, ErrNotActive
	}

	trg, ok := c.triggers[accountID]
	if !ok {
		trg = Trigger{ID: "ti_" + uuid.NewString(), AccountID: accountID}
	}
	trg.Name = name
	trg.CallbackURL = callbackURL
	trg.Status = "enabled"
	c.triggers[accountID] = trg
	return trg, nil
}

// Generate adds 0-3 messages to every active account and returns the pushes
// due to enabled triggers.
func (c *Connector) Generate() []Push {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	var pushes []Push
	for id, acct := range c.accounts {
		if acct.Status != StatusActive {
			continue
		}
		numEmails := c.rng.Intn(4)
		for i := 0; i < numEmails; i++ {
			receivedAt := now.Add(-time.Duration(c.rng.Intn(30)) * time.Second)
			email := c.generateEmail(acct, receivedAt, len(c.emails[id]))
			c.emails[id] = append(c.emails[id], email)
			if trg, ok := c.triggers[id]; ok {
				pushes = append(pushes, Push{Trigger: trg, UserID: acct.UserID, Message: email})
			}
		}
	}
	return pushes
}

// AddEmail appends one generated message to an account and returns it.
func (c *Connector) AddEmail(accountID string) (models.RawMessage, *Push, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[accountID]
	if !ok {
		return nil, nil, ErrUnknownAccount
	}
	email := c.generateEmail(acct, c.now().UTC(), len(c.emails[accountID]))
	c.emails[accountID] = append(c.emails[accountID], email)

	if trg, ok := c.triggers[accountID]; ok {
		return email, &Push{Trigger: trg, UserID: acct.UserID, Message: email}, nil
	}
	return email, nil, nil
}

// generateEmail builds a record in the connector's flattened message shape.
// Callers hold c.mu.
func (c *Connector) generateEmail(acct *Account, receivedAt time.Time, emailIndex int) models.RawMessage {
	subject := subjects[c.rng.Intn(len(subjects))]
	first := firstNames[c.rng.Intn(len(firstNames))]
	last := lastNames[c.rng.Intn(len(lastNames))]
	from := fmt.Sprintf("%s %s <%s.%s@%s>", first, last, strings.ToLower(first), strings.ToLower(last), domains[c.rng.Intn(len(domains))])
	messageID := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Full email body for: %s\n\n"+
			"This is mock content specifically for you.\n"+
			"Received at: %s\n"+
			"Email index: %d\n\n"+
			"Best regards,\nThe Mock Server",
		acct.Email,
		subject,
		receivedAt.Format(time.RFC3339Nano),
		emailIndex,
	)

	rec := models.RawMessage{
		"messageId":        messageID,
		"threadId":         messageID,
		"sender":           from,
		"to":               acct.Email,
		"subject":          fmt.Sprintf("%s [%d]", subject, emailIndex),
		"labelIds":         []any{"INBOX", "UNREAD"},
		"messageTimestamp": receivedAt.Format(time.RFC3339),
		"preview": map[string]any{
			"body":    fmt.Sprintf("This is a snippet for: %s & more", subject),
			"subject": subject,
		},
	}
	// Every third message is HTML so both body paths get exercised.
	if emailIndex%3 == 2 {
		rec["messageText"] = "<html><body><p>" + strings.ReplaceAll(body, "\n", "<br>") + "</p></body></html>"
	} else {
		rec["messageText"] = body
	}
	return rec
}
