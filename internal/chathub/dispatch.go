package chathub

import (
	"context"
	"encoding/json"
	"fmt"

	"chatrelay/backend/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Dispatcher decodes inbound frames, validates them and drives the Router.
// Every frame is answered with an ack to the connection that sent it.
type Dispatcher struct {
	router   *Router
	validate *validator.Validate
	logger   *zap.Logger
}

func NewDispatcher(router *Router, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		router:   router,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Handle processes one raw frame from connID and returns the ack it sent.
func (d *Dispatcher) Handle(ctx context.Context, connID string, raw []byte) models.AckPayload {
	var in models.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return d.reply(connID, in, "", fmt.Errorf("%w: %v", ErrBadEvent, err))
	}
	if err := d.validate.Struct(in); err != nil {
		return d.reply(connID, in, "", fmt.Errorf("%w: %v", ErrBadEvent, err))
	}

	roomID, err := d.route(ctx, connID, in)
	return d.reply(connID, in, roomID, err)
}

func (d *Dispatcher) route(ctx context.Context, connID string, in models.InboundEvent) (string, error) {
	switch in.Type {
	case models.EventJoinGlobal:
		return d.router.JoinGlobal(ctx, connID)

	case models.EventJoinPrivate:
		var data models.JoinPrivateData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		return d.router.JoinPrivate(ctx, connID, data.TargetUserID)

	case models.EventRequestChat:
		var data models.RequestChatData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		outcome, err := d.router.RequestChat(connID, data.TargetUserID)
		return outcome.RoomID, err

	case models.EventRespondChat:
		var data models.RespondChatData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		outcome, err := d.router.RespondChat(connID, data.RequesterID, data.Accept)
		return outcome.RoomID, err

	case models.EventSendMessage:
		var data models.SendMessageData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		_, err := d.router.SendMessage(ctx, connID, data.RoomID, data.Text, data.Attachment)
		return data.RoomID, err

	case models.EventTyping:
		var data models.TypingData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		return data.RoomID, d.router.Typing(connID, data.RoomID, data.IsTyping)

	case models.EventReact:
		var data models.ReactData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		_, err := d.router.React(ctx, connID, data.MessageID, data.Reaction)
		return "", err

	case models.EventRead:
		var data models.ReadData
		if err := d.decode(in, &data); err != nil {
			return "", err
		}
		_, err := d.router.MarkRead(ctx, connID, data.MessageID)
		return "", err
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrBadEvent, in.Type)
}

func (d *Dispatcher) decode(in models.InboundEvent, dst any) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("%w: %s needs data", ErrBadEvent, in.Type)
	}
	if err := json.Unmarshal(in.Data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if err := d.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	return nil
}

func (d *Dispatcher) reply(connID string, in models.InboundEvent, roomID string, err error) models.AckPayload {
	ack := models.AckPayload{RequestID: in.RequestID, Event: in.Type, OK: err == nil, RoomID: roomID}
	if err != nil {
		ack.Code = ErrorCode(err)
		ack.Error = err.Error()
		if ack.Code == codeInternal {
			ack.Error = "internal error"
		}
		ack.RoomID = ""
		d.logger.Debug("event rejected",
			zap.String("connection_id", connID),
			zap.String("event", in.Type),
			zap.String("code", ack.Code),
			zap.Error(err))
	}
	d.router.Reply(connID, models.OutboundEvent{Type: models.EventAck, Payload: ack})
	return ack
}
