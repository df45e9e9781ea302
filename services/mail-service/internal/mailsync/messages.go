package mailsync

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stoik/mailbridge/internal/models"
	"github.com/stoik/mailbridge/services/mail-service/internal/store"
)

// Page is one page of the message list.
type Page struct {
	Number  int
	Count   int64
	HasNext bool
	HasPrev bool
	Results []models.Message
}

// ListMessages returns page number (1-based) of all messages, newest first.
// Page 1 always exists; any other page past the end is ErrNotFound.
func (s *Service) ListMessages(ctx context.Context, page int) (Page, error) {
	if page < 1 {
		return Page{}, ErrNotFound
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Page{}, err
	}

	size := s.cfg.PageSize
	offset := (page - 1) * size
	if page > 1 && int64(offset) >= stats.Total {
		return Page{}, ErrNotFound
	}

	msgs, err := s.store.ListMessages(ctx, size, offset)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Number:  page,
		Count:   stats.Total,
		HasNext: int64(offset+len(msgs)) < stats.Total,
		HasPrev: page > 1,
		Results: msgs,
	}, nil
}

func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (models.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Message{}, ErrNotFound
	}
	return msg, err
}

// MarkRead flags the message as read. Marking a read message again succeeds.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (models.Message, error) {
	msg, err := s.store.MarkRead(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Message{}, ErrNotFound
	}
	return msg, err
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	return s.store.Stats(ctx)
}
