package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailsync/internal/model"
)

func TestResolveEmailIDPriority(t *testing.T) {
	tests := []struct {
		name  string
		email model.RawEmail
		want  string
	}{
		{
			name: "message id wins over everything",
			email: model.RawEmail{
				MessageID: "<abc123@mail.example.com>",
				MailboxID: "mbx-9",
				LegacyID:  "legacy-7",
				UID:       42,
			},
			want: "<abc123@mail.example.com>",
		},
		{
			name: "mailbox id when message id is missing",
			email: model.RawEmail{
				MailboxID: "mbx-9",
				LegacyID:  "legacy-7",
				UID:       42,
			},
			want: "mbx-9",
		},
		{
			name: "legacy id when the higher two are missing",
			email: model.RawEmail{
				LegacyID: "legacy-7",
				UID:      42,
			},
			want: "legacy-7",
		},
		{
			name:  "uid as the last resort",
			email: model.RawEmail{UID: 987654},
			want:  "987654",
		},
		{
			name:  "nothing usable",
			email: model.RawEmail{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEmailID(&tt.email))
		})
	}
}

func TestResolveEmailIDRejectsPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		email model.RawEmail
		want  string
	}{
		{
			name: "placeholder message id falls through to mailbox id",
			email: model.RawEmail{
				MessageID: "test",
				MailboxID: "mbx-relevant",
			},
			want: "mbx-relevant",
		},
		{
			name: "small numeric id is a row counter leak, not an id",
			email: model.RawEmail{
				MessageID: "1",
				MailboxID: "mbx-relevant",
			},
			want: "mbx-relevant",
		},
		{
			name: "undefined string from a null serialization",
			email: model.RawEmail{
				MessageID: "undefined",
				MailboxID: "mbx-relevant",
			},
			want: "mbx-relevant",
		},
		{
			name: "too-short id is rejected",
			email: model.RawEmail{
				MessageID: "ab",
				MailboxID: "mbx-relevant",
			},
			want: "mbx-relevant",
		},
		{
			name: "whitespace-only is empty",
			email: model.RawEmail{
				MessageID: "   ",
				MailboxID: "mbx-relevant",
			},
			want: "mbx-relevant",
		},
		{
			name: "large numeric id is accepted",
			email: model.RawEmail{
				MessageID: "987654321",
				MailboxID: "mbx-other",
			},
			want: "987654321",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEmailID(&tt.email))
		})
	}
}
