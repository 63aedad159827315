package smsbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbaliyan/smsbox/store"
)

// OutboxSender is a Transport that records each attempt in the Outbox and
// hands it to a Radio.
//
// For every address it inserts a fresh Outbox record and transmits it with
// the record's ID as the target reference the radio reports back. A rejected
// transmission removes its Outbox record again, so a rejected dispatch leaves
// no stray Outbox record behind.
type OutboxSender struct {
	messages *MessageStore
	radio    Radio
	logger   *slog.Logger
}

// NewOutboxSender creates a Transport over radio that records attempts in messages.
func NewOutboxSender(messages *MessageStore, radio Radio, logger *slog.Logger) *OutboxSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxSender{messages: messages, radio: radio, logger: logger}
}

var _ Transport = (*OutboxSender)(nil)

// Send records and transmits req to each address.
//
// It returns an error only when no address was accepted. Addresses rejected
// after another one was accepted are recorded in the Failed folder instead,
// so the queued original is not sent twice.
func (s *OutboxSender) Send(ctx context.Context, req SendRequest) error {
	if len(req.Addresses) == 0 {
		return ErrEmptyAddress
	}

	var (
		accepted int
		errs     []error
	)
	for _, addr := range req.Addresses {
		err := s.sendOne(ctx, addr, req, accepted > 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		s.logger.Error("some recipients rejected by radio", "accepted", accepted, "error", errors.Join(errs...))
	}
	return nil
}

func (s *OutboxSender) sendOne(ctx context.Context, addr string, req SendRequest, keepOnReject bool) error {
	msg, err := s.messages.Insert(ctx, store.FolderOutbox, store.MessageData{
		ThreadID: req.ThreadID,
		Address:  addr,
		Body:     req.Body,
		IsRead:   true,
	})
	if err != nil {
		return err
	}

	err = s.radio.Transmit(ctx, Transmission{
		MessageID: msg.GetID(),
		Address:   addr,
		Body:      req.Body,
		ThreadID:  req.ThreadID,
		Token:     req.Token,
	})
	if err == nil {
		return nil
	}

	if keepOnReject {
		// Another address already went out; keep this attempt visible as failed.
		s.messages.MoveToFolder(ctx, msg.GetID(), store.FolderFailed)
		return err
	}
	if _, derr := s.messages.DeleteByID(ctx, msg.GetID()); derr != nil {
		s.logger.Error("failed to remove rejected outbox record", "message_id", msg.GetID(), "error", derr)
	}
	return err
}
