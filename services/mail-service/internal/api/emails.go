package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/mailsync"
)

// emailSummary is the list representation; bodies are left out.
type emailSummary struct {
	ID         uuid.UUID     `json:"id"`
	MessageID  string        `json:"message_id"`
	Subject    string        `json:"subject"`
	Sender     string        `json:"sender"`
	Snippet    string        `json:"snippet"`
	ReceivedAt time.Time     `json:"received_at"`
	IsRead     bool          `json:"is_read"`
	Labels     models.Labels `json:"labels"`
}

type emailDetail struct {
	ID            uuid.UUID     `json:"id"`
	MessageID     string        `json:"message_id"`
	ThreadID      string        `json:"thread_id"`
	Subject       string        `json:"subject"`
	Sender        string        `json:"sender"`
	SenderName    string        `json:"sender_name"`
	SenderAddress string        `json:"sender_address"`
	Recipient     string        `json:"recipient"`
	BodyText      *string       `json:"body_text"`
	BodyHTML      *string       `json:"body_html"`
	Snippet       string        `json:"snippet"`
	Labels        models.Labels `json:"labels"`
	ReceivedAt    time.Time     `json:"received_at"`
	IsRead        bool          `json:"is_read"`
	CreatedAt     time.Time     `json:"created_at"`
}

type pageResponse struct {
	Count    int64          `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []emailSummary `json:"results"`
}

func newSummary(m models.Message) emailSummary {
	return emailSummary{
		ID:         m.ID,
		MessageID:  m.ExternalID,
		Subject:    m.Subject,
		Sender:     m.Sender,
		Snippet:    m.Snippet,
		ReceivedAt: m.ReceivedAt,
		IsRead:     m.IsRead,
		Labels:     labelsOrEmpty(m.Labels),
	}
}

func newDetail(m models.Message) emailDetail {
	name, addr := parseSender(m.Sender)
	return emailDetail{
		ID:            m.ID,
		MessageID:     m.ExternalID,
		ThreadID:      m.ThreadID,
		Subject:       m.Subject,
		Sender:        m.Sender,
		SenderName:    name,
		SenderAddress: addr,
		Recipient:     m.Recipient,
		BodyText:      m.BodyText,
		BodyHTML:      m.BodyHTML,
		Snippet:       m.Snippet,
		Labels:        labelsOrEmpty(m.Labels),
		ReceivedAt:    m.ReceivedAt,
		IsRead:        m.IsRead,
		CreatedAt:     m.CreatedAt,
	}
}

func labelsOrEmpty(l models.Labels) models.Labels {
	if l == nil {
		return models.Labels{}
	}
	return l
}

// parseSender splits a From header into display name and address. Values
// that are not RFC 5322 addresses are returned as a name, or as an address
// when they look like one.
func parseSender(sender string) (name, address string) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(sender); err == nil {
		return addr.Name, addr.Address
	}
	if strings.Contains(sender, "@") && !strings.ContainsAny(sender, " <>") {
		return "", sender
	}
	return sender, ""
}

func (s *Server) handleListEmails(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		s.abortWithError(c, fmt.Errorf("%w: invalid page", mailsync.ErrNotFound))
		return
	}

	p, err := s.svc.ListMessages(c.Request.Context(), page)
	if err != nil {
		if errors.Is(err, mailsync.ErrNotFound) {
			err = fmt.Errorf("%w: invalid page", mailsync.ErrNotFound)
		}
		s.abortWithError(c, err)
		return
	}

	resp := pageResponse{
		Count:   p.Count,
		Results: make([]emailSummary, 0, len(p.Results)),
	}
	for _, m := range p.Results {
		resp.Results = append(resp.Results, newSummary(m))
	}
	if p.HasNext {
		u := pageURL(c, p.Number+1)
		resp.Next = &u
	}
	if p.HasPrev {
		u := pageURL(c, p.Number-1)
		resp.Previous = &u
	}

	c.JSON(http.StatusOK, resp)
}

// pageURL returns the absolute URL of the current request for another page.
// The first page carries no page parameter.
func pageURL(c *gin.Context, page int) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	q := c.Request.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (s *Server) handleGetEmail(c *gin.Context) {
	id, ok := s.emailID(c)
	if !ok {
		return
	}
	msg, err := s.svc.GetMessage(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDetail(msg))
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id, ok := s.emailID(c)
	if !ok {
		return
	}
	msg, err := s.svc.MarkRead(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDetail(msg))
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// emailID parses the :id path parameter. Malformed ids cannot exist, so
// they are reported as not found.
func (s *Server) emailID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.abortWithError(c, fmt.Errorf("%w: email %q", mailsync.ErrNotFound, c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}
