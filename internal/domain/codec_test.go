package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(EventUserTyping, UserTypingPayload{UserID: "alice", IsTyping: true})
	req.NoError(err)
	req.JSONEq(`{"type":"user_typing","payload":{"userId":"alice","isTyping":true}}`, string(frame))

	env, err := Decode(frame)
	req.NoError(err)
	req.Equal(EventUserTyping, env.Type)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"Not JSON", `hello`},
		{"Missing type", `{"payload":{}}`},
		{"Array", `[1,2]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDecodePayload(t *testing.T) {
	req := require.New(t)

	env, err := Decode([]byte(`{"type":"send_message","payload":{"toUserId":"bob","content":"hi","contentType":"file","fileName":"a.txt","fileSize":12}}`))
	req.NoError(err)

	var p SendMessagePayload
	req.NoError(DecodePayload(env, &p))
	req.Equal("bob", p.ToUserID)
	req.Equal(ContentFile, p.ContentType)
	req.Equal("a.txt", *p.FileName)
	req.EqualValues(12, *p.FileSize)
}

func TestDecodePayload_Validation(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		dst    any
		reason string
	}{
		{
			name:   "Empty payload",
			frame:  `{"type":"send_message"}`,
			dst:    &SendMessagePayload{},
			reason: "toUserId is required",
		},
		{
			name:   "Wrong content type",
			frame:  `{"type":"send_message","payload":{"toUserId":"bob","content":"hi","contentType":"video"}}`,
			dst:    &SendMessagePayload{},
			reason: "contentType must be one of [text image file]",
		},
		{
			name:   "Negative file size",
			frame:  `{"type":"send_message","payload":{"toUserId":"bob","content":"hi","fileSize":-1}}`,
			dst:    &SendMessagePayload{},
			reason: "fileSize must be >= 0",
		},
		{
			name:   "Blank message id",
			frame:  `{"type":"mark_as_read","payload":{"messageIds":[""],"fromUserId":"alice"}}`,
			dst:    &MarkAsReadPayload{},
			reason: "messageIds[0]",
		},
		{
			name:   "Missing sender",
			frame:  `{"type":"mark_as_read","payload":{"messageIds":["m1"]}}`,
			dst:    &MarkAsReadPayload{},
			reason: "fromUserId is required",
		},
		{
			name:   "Malformed payload",
			frame:  `{"type":"typing","payload":{"toUserId":42}}`,
			dst:    &TypingPayload{},
			reason: "malformed typing payload",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			env, err := Decode([]byte(tc.frame))
			req.NoError(err)

			err = DecodePayload(env, tc.dst)
			req.ErrorIs(err, ErrValidation)
			req.Contains(err.Error(), tc.reason)
		})
	}
}

func TestDecodePayload_EmptyMessageIDs(t *testing.T) {
	for _, frame := range []string{
		`{"type":"mark_as_read","payload":{"messageIds":[],"fromUserId":"alice"}}`,
		`{"type":"mark_as_read","payload":{"fromUserId":"alice"}}`,
	} {
		env, err := Decode([]byte(frame))
		require.NoError(t, err)

		var p MarkAsReadPayload
		require.NoError(t, DecodePayload(env, &p), frame)
		require.Empty(t, p.MessageIDs)
	}
}

func TestEventType_IsInbound(t *testing.T) {
	for _, et := range []EventType{EventAuthenticate, EventSendMessage, EventTyping, EventStopTyping, EventMarkAsRead, EventGetOnlineUsers, EventLogout} {
		require.True(t, et.IsInbound(), et)
	}
	for _, et := range []EventType{EventReceiveMessage, EventUserOnline, EventError, "junk_1", ""} {
		require.False(t, et.IsInbound(), et)
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Nil", nil, ""},
		{"Validation", fmt.Errorf("%w: toUserId is required", ErrValidation), "validation failed: toUserId is required"},
		{"Auth", fmt.Errorf("%w: token expired", ErrAuth), "authentication failed: token expired"},
		{"Rate limited", ErrRateLimited, "rate limit exceeded"},
		{"Persistence", fmt.Errorf("%w: disk full", ErrPersistence), "failed to send message"},
		{"Cipher", ErrCipher, "failed to send message"},
		{"Unknown", errors.New("boom"), "failed to send message"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PublicMessage(tc.err, "failed to send message"))
		})
	}
}

func TestConnectionErrorsAreRouting(t *testing.T) {
	require.ErrorIs(t, ErrConnectionClosed, ErrRouting)
	require.ErrorIs(t, ErrSendBufferFull, ErrRouting)
	require.ErrorIs(t, ErrUnknownEvent, ErrValidation)
}
