package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRequest_Validate(t *testing.T) {
	att := Attachment{URL: "https://files/1", Filename: "a.pdf"}

	cases := []struct {
		name string
		req  SendMessageRequest
		ok   bool
	}{
		{"text", SendMessageRequest{Text: "  hello "}, true},
		{"attachment only", SendMessageRequest{Attachments: []Attachment{att}}, true},
		{"empty", SendMessageRequest{Text: "   "}, false},
		{"too long", SendMessageRequest{Text: strings.Repeat("я", MaxMessageTextLength+1)}, false},
		{"max length in runes", SendMessageRequest{Text: strings.Repeat("я", MaxMessageTextLength)}, true},
		{"too many attachments", SendMessageRequest{Text: "x", Attachments: make([]Attachment, MaxAttachments+1)}, false},
		{"attachment without url", SendMessageRequest{Attachments: []Attachment{{Filename: "a"}}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSendMessageRequest_ContentTrimsAndDefaults(t *testing.T) {
	req := SendMessageRequest{Text: "  hi  "}
	require.NoError(t, req.Validate())

	c := req.Content()
	assert.Equal(t, "hi", c.Text)
	assert.NotNil(t, c.Attachments)
}

func TestEditMessageRequest(t *testing.T) {
	current := MessageContent{Text: "old", Attachments: []Attachment{{URL: "u", Filename: "f"}}}

	keep := EditMessageRequest{Text: ""}
	require.NoError(t, keep.Validate(current.Attachments), "attachments alone keep the message valid")
	assert.Equal(t, current.Attachments, keep.Apply(current).Attachments)

	empty := []Attachment{}
	drop := EditMessageRequest{Text: "", Attachments: &empty}
	assert.Error(t, drop.Validate(current.Attachments))
}

func TestMessageCursor_Normalize(t *testing.T) {
	c := MessageCursor{}
	require.NoError(t, c.Normalize())
	assert.Equal(t, DefaultMessageLimit, c.Limit)

	c = MessageCursor{Limit: 1000}
	require.NoError(t, c.Normalize())
	assert.Equal(t, MaxMessageLimit, c.Limit)

	c = MessageCursor{BeforeID: 5, AfterID: 2}
	assert.Error(t, c.Normalize())
}

func TestDeliveryStatus_Rank(t *testing.T) {
	assert.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	assert.Less(t, StatusDelivered.Rank(), StatusRead.Rank())
}

func TestTicketStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, TicketNew.CanTransitionTo(TicketInProgress))
	assert.True(t, TicketResolved.CanTransitionTo(TicketClosed))
	assert.True(t, TicketInProgress.CanTransitionTo(TicketNew))
	assert.True(t, TicketClosed.CanTransitionTo(TicketInProgress))

	assert.False(t, TicketClosed.CanTransitionTo(TicketNew))
	assert.False(t, TicketClosed.CanTransitionTo(TicketResolved))
	assert.False(t, TicketNew.CanTransitionTo(TicketNew))
	assert.False(t, TicketNew.CanTransitionTo("archived"))
}

func TestNewUnreadSummary(t *testing.T) {
	open := TicketInProgress
	closed := TicketClosed

	s := NewUnreadSummary([]ChatUnread{
		{ChatID: "p", ChatType: ChatPrivate, UnreadCount: 2},
		{ChatID: "g", ChatType: ChatGroup, UnreadCount: 3},
		{ChatID: "s1", ChatType: ChatSupport, TicketStatus: &open, UnreadCount: 4},
		{ChatID: "s2", ChatType: ChatSupport, TicketStatus: &closed, UnreadCount: 7},
	})

	assert.Equal(t, 9, s.Total)
	assert.Equal(t, 4, s.ByChatType[ChatSupport])
	assert.Equal(t, 4, s.ByTicketStatus[TicketInProgress])
	assert.Equal(t, 7, s.ByTicketStatus[TicketClosed])
	assert.Len(t, s.Chats, 4)
}

func TestCreateChatRequest_Validate(t *testing.T) {
	req := CreateChatRequest{Type: ChatPrivate, MemberIDs: []string{"u2", "u2", " "}}
	require.NoError(t, req.Validate())
	assert.Equal(t, []string{"u2"}, req.MemberIDs)

	assert.Error(t, (&CreateChatRequest{Type: ChatGroup}).Validate())
	assert.Error(t, (&CreateChatRequest{Type: ChatSupport, MemberIDs: []string{"x"}}).Validate())
	assert.Error(t, (&CreateChatRequest{Type: "channel"}).Validate())
}

func TestRole(t *testing.T) {
	assert.True(t, RoleSupport.IsStaff())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleAgent.IsStaff())

	_, err := NewUser("u1", "hacker")
	assert.Error(t, err)
}

func TestReactionRequest_Validate(t *testing.T) {
	ok := ReactionRequest{Emoji: " 👍🏽 "}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "👍🏽", ok.Emoji)

	assert.Error(t, (&ReactionRequest{Emoji: ""}).Validate())
	assert.Error(t, (&ReactionRequest{Emoji: strings.Repeat("x", MaxEmojiLength+1)}).Validate())
}
