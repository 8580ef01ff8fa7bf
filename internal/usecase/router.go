package usecase

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/metrics"
	"github.com/mmuslimabdulj/goat-whisper/internal/presence"
	"go.uber.org/zap"
)

// RouterDeps wires the router to its collaborators
type RouterDeps struct {
	Store    MessageStore
	Accounts AccountDirectory
	Cipher   Cipher
	Registry *presence.Registry
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	// MaxContentLength caps the plaintext length in characters, 0 means domain.MaxContentLength
	MaxContentLength int
}

// Router turns validated inbound events into stored messages and pushes to
// live connections. It never holds the registry lock across I/O.
type Router struct {
	store      MessageStore
	accounts   AccountDirectory
	cipher     Cipher
	registry   *presence.Registry
	metrics    *metrics.Metrics
	log        *zap.Logger
	maxContent int
	now        func() time.Time
}

// NewRouter creates a router
func NewRouter(deps RouterDeps) *Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	maxContent := deps.MaxContentLength
	if maxContent <= 0 {
		maxContent = domain.MaxContentLength
	}
	return &Router{
		store:      deps.Store,
		accounts:   deps.Accounts,
		cipher:     deps.Cipher,
		registry:   deps.Registry,
		metrics:    deps.Metrics,
		log:        log.Named("router"),
		maxContent: maxContent,
		now:        time.Now,
	}
}

// SendMessage validates, encrypts, persists and then delivers a message.
// On success the outbound payload has been pushed as receive_message to every
// receiver connection and as message_sent to origin. Delivery failures are
// logged, they never undo the stored record.
func (r *Router) SendMessage(ctx context.Context, origin presence.Conn, sender domain.Identity, req domain.SendMessagePayload) (domain.OutboundMessage, error) {
	if err := domain.Validate(req); err != nil {
		return domain.OutboundMessage{}, err
	}
	if n := utf8.RuneCountInString(req.Content); n > r.maxContent {
		return domain.OutboundMessage{}, fmt.Errorf("%w: content exceeds %d characters", domain.ErrValidation, r.maxContent)
	}

	exists, err := r.accounts.Exists(ctx, req.ToUserID)
	if err != nil {
		r.log.Error("receiver lookup failed", zap.String("receiver_id", req.ToUserID), zap.Error(err))
		return domain.OutboundMessage{}, fmt.Errorf("%w: receiver lookup: %v", domain.ErrPersistence, err)
	}
	if !exists {
		return domain.OutboundMessage{}, fmt.Errorf("%w: receiver not found", domain.ErrValidation)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = domain.ContentText
	}

	encrypted, err := r.cipher.Encrypt(req.Content)
	if err != nil {
		r.log.Error("encrypt failed", zap.String("sender_id", sender.ID), zap.Error(err))
		return domain.OutboundMessage{}, fmt.Errorf("%w: encrypt message: %v", domain.ErrCipher, err)
	}

	stored, err := r.store.Create(ctx, domain.NewMessage{
		SenderID:         sender.ID,
		ReceiverID:       req.ToUserID,
		ContentEncrypted: encrypted,
		ContentType:      contentType,
		FileName:         req.FileName,
		FileSize:         req.FileSize,
	})
	if err != nil {
		r.log.Error("store message failed",
			zap.String("sender_id", sender.ID),
			zap.String("receiver_id", req.ToUserID),
			zap.Error(err))
		return domain.OutboundMessage{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	r.metrics.MessageStored()

	out := domain.OutboundMessage{
		ID:          stored.ID,
		FromUserID:  stored.SenderID,
		ToUserID:    stored.ReceiverID,
		Content:     req.Content,
		ContentType: stored.ContentType,
		FileName:    stored.FileName,
		FileSize:    stored.FileSize,
		IsRead:      stored.IsRead,
		CreatedAt:   stored.CreatedAt,
	}

	r.deliver(r.registry.Route(out.ToUserID), domain.EventReceiveMessage, out)
	if origin != nil {
		r.deliver([]presence.Conn{origin}, domain.EventMessageSent, out)
	}

	return out, nil
}

// MarkAsRead flags the reader's messages as read and, when anything changed,
// tells every connection of the original sender. It returns the number of
// messages modified. An empty id set succeeds with 0.
func (r *Router) MarkAsRead(ctx context.Context, reader domain.Identity, req domain.MarkAsReadPayload) (int, error) {
	if err := domain.Validate(req); err != nil {
		return 0, err
	}
	if len(req.MessageIDs) == 0 {
		return 0, nil
	}

	modified, err := r.store.BulkMarkRead(ctx, req.MessageIDs, reader.ID)
	if err != nil {
		r.log.Error("mark as read failed", zap.String("reader_id", reader.ID), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if len(modified) == 0 {
		return 0, nil
	}

	r.deliver(r.registry.Route(req.FromUserID), domain.EventMessagesRead, domain.MessagesReadPayload{
		MessageIDs: modified,
		ReadBy:     reader.ID,
	})
	return len(modified), nil
}

// Typing relays a typing indicator. Dropped silently when the target is offline.
func (r *Router) Typing(sender domain.Identity, toUserID string, isTyping bool) error {
	if toUserID == "" {
		return fmt.Errorf("%w: toUserId is required", domain.ErrValidation)
	}
	r.deliver(r.registry.Route(toUserID), domain.EventUserTyping, domain.UserTypingPayload{
		UserID:   sender.ID,
		IsTyping: isTyping,
	})
	return nil
}

// OnlineUsers lists every online identity
func (r *Router) OnlineUsers() []string {
	return r.registry.ListOnline()
}

// BroadcastPresence tells every other identity's connections that userID
// went online or offline.
func (r *Router) BroadcastPresence(userID string, online bool) {
	event := domain.EventUserOffline
	if online {
		event = domain.EventUserOnline
	}
	r.deliver(r.registry.Others(userID), event, domain.PresencePayload{UserID: userID})
}

// RecordPresence persists the presence flag on the account. Failures are
// logged only, presence in the registry stays authoritative.
func (r *Router) RecordPresence(ctx context.Context, userID string, online bool) {
	if err := r.accounts.SetPresence(ctx, userID, online, r.now()); err != nil {
		r.log.Warn("presence update failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err))
	}
}

// deliver encodes payload once and queues it on every connection. A failing
// connection is logged and counted, the rest still receive the frame.
func (r *Router) deliver(conns []presence.Conn, event domain.EventType, payload any) int {
	if len(conns) == 0 {
		return 0
	}

	frame, err := domain.Encode(event, payload)
	if err != nil {
		r.log.Error("encode outbound event failed", zap.String("event", string(event)), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			r.metrics.DeliveryFailed(string(event))
			r.log.Warn("delivery failed",
				zap.String("event", string(event)),
				zap.String("user_id", c.UserID()),
				zap.String("conn_id", c.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
