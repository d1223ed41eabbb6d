package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/internal/model"
)

func TestDetectThread(t *testing.T) {
	tests := []struct {
		name        string
		email       model.RawEmail
		wantThread  bool
		wantSubject string
		wantType    string
	}{
		{
			name:        "reply prefix",
			email:       model.RawEmail{Subject: "Re: Quarterly Report"},
			wantThread:  true,
			wantSubject: "Quarterly Report",
			wantType:    ReplyTypeReply,
		},
		{
			name:        "uppercase reply prefix",
			email:       model.RawEmail{Subject: "RE: Quarterly Report"},
			wantThread:  true,
			wantSubject: "Quarterly Report",
			wantType:    ReplyTypeReply,
		},
		{
			name:        "forward prefix",
			email:       model.RawEmail{Subject: "Fwd: Quarterly Report"},
			wantThread:  true,
			wantSubject: "Quarterly Report",
			wantType:    ReplyTypeForward,
		},
		{
			name:        "short forward prefix",
			email:       model.RawEmail{Subject: "FW: Quarterly Report"},
			wantThread:  true,
			wantSubject: "Quarterly Report",
			wantType:    ReplyTypeForward,
		},
		{
			name:        "prefix stripped once only",
			email:       model.RawEmail{Subject: "Re: Re: Quarterly Report"},
			wantThread:  true,
			wantSubject: "Re: Quarterly Report",
			wantType:    ReplyTypeReply,
		},
		{
			name:        "in-reply-to header without prefix",
			email:       model.RawEmail{Subject: "Quarterly Report", InReplyTo: "<abc@mail>"},
			wantThread:  true,
			wantSubject: "Quarterly Report",
			wantType:    ReplyTypeReply,
		},
		{
			name:        "references header without prefix",
			email:       model.RawEmail{Subject: "Quarterly Report", References: []string{"<abc@mail>"}},
			wantThread:  true,
			wantSubject: "Quarterly Report",
			wantType:    ReplyTypeReply,
		},
		{
			name:        "plain subject is not a thread",
			email:       model.RawEmail{Subject: "Quarterly Report"},
			wantThread:  false,
			wantSubject: "Quarterly Report",
		},
		{
			name:        "resend is not a reply marker",
			email:       model.RawEmail{Subject: "Regarding the invoice"},
			wantThread:  false,
			wantSubject: "Regarding the invoice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DetectThread(&tt.email)
			assert.Equal(t, tt.wantThread, info.IsThread)
			assert.Equal(t, tt.wantSubject, info.Subject)
			if tt.wantThread {
				assert.Equal(t, tt.wantType, info.ReplyType)
			}
		})
	}
}

func TestStripThreadPrefix(t *testing.T) {
	assert.Equal(t, "Quarterly Report", StripThreadPrefix("Re: Quarterly Report"))
	assert.Equal(t, "Re: Quarterly Report", StripThreadPrefix("Re: Re: Quarterly Report"))
	assert.Equal(t, "Quarterly Report", StripThreadPrefix("  Quarterly Report  "))
}

func TestExpandFiltersByParticipantAndSubject(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mb := &fakeMailbox{inbox: []model.RawEmail{
		{MessageID: "<a@mail>", Subject: "Re: Launch plan", From: "Lead <lead@acme.com>", Date: now.Add(-time.Hour)},
		{MessageID: "<b@mail>", Subject: "Re: Launch plan (updated)", From: "lead@acme.com", Date: now.Add(-30 * time.Minute)},
		{MessageID: "<c@mail>", Subject: "Re: Launch plan", From: "other@acme.com", Date: now.Add(-time.Hour)},
		{MessageID: "<d@mail>", Subject: "Unrelated newsletter", From: "lead@acme.com", Date: now.Add(-time.Hour)},
	}}

	resolver := NewThreadResolver(mb, 30*24*time.Hour, 50, zap.NewNop())
	info := DetectThread(&model.RawEmail{Subject: "Re: Launch plan"})
	require.True(t, info.IsThread)

	related, err := resolver.Expand(context.Background(), info, "lead@acme.com", now)
	require.NoError(t, err)

	var ids []string
	for _, e := range related {
		ids = append(ids, e.MessageID)
	}
	assert.Equal(t, []string{"<a@mail>", "<b@mail>"}, ids)
}

func TestExpandSkipsNonThreads(t *testing.T) {
	mb := &fakeMailbox{inbox: []model.RawEmail{{Subject: "anything", From: "lead@acme.com"}}}
	resolver := NewThreadResolver(mb, 30*24*time.Hour, 50, zap.NewNop())

	related, err := resolver.Expand(context.Background(), ThreadInfo{IsThread: false}, "lead@acme.com", time.Now())
	require.NoError(t, err)
	assert.Empty(t, related)
}
