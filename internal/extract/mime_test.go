package extract

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"inboxcleaner/internal/model"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *model.Part
		want    string
	}{
		{name: "nil payload", payload: nil, want: ""},
		{name: "no parts no data", payload: &model.Part{MimeType: "text/plain"}, want: ""},
		{
			name:    "single payload of any type",
			payload: &model.Part{MimeType: "application/octet-stream", Data: b64("top level")},
			want:    "top level",
		},
		{
			name:    "unpadded base64url",
			payload: &model.Part{MimeType: "text/plain", Data: base64.RawURLEncoding.EncodeToString([]byte("ab?>"))},
			want:    "ab?>",
		},
		{
			name: "nested parts in structural order",
			payload: &model.Part{
				MimeType: "multipart/mixed",
				Parts: []*model.Part{
					{
						MimeType: "multipart/alternative",
						Parts: []*model.Part{
							{MimeType: "text/plain", Data: b64("A")},
							{MimeType: "TEXT/HTML", Data: b64("B")},
						},
					},
					{MimeType: "image/png", Data: b64("not text")},
					nil,
					{MimeType: "text/plain", Data: b64("C")},
				},
			},
			want: "ABC",
		},
		{
			name: "undecodable part skipped",
			payload: &model.Part{
				MimeType: "multipart/alternative",
				Parts: []*model.Part{
					{MimeType: "text/plain", Data: "!!!not base64!!!"},
					{MimeType: "text/html", Data: b64("ok")},
				},
			},
			want: "ok",
		},
		{
			name:    "invalid utf-8 replaced",
			payload: &model.Part{MimeType: "text/plain", Data: base64.URLEncoding.EncodeToString([]byte{'h', 'i', 0xff})},
			want:    "hi\uFFFD",
		},
		{
			name:    "latin-1 charset",
			payload: &model.Part{MimeType: "text/plain", Charset: "ISO-8859-1", Data: base64.URLEncoding.EncodeToString([]byte{'c', 'a', 'f', 0xe9})},
			want:    "café",
		},
		{
			name:    "unknown charset read as utf-8",
			payload: &model.Part{MimeType: "text/plain", Charset: "x-made-up", Data: b64("plain")},
			want:    "plain",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecodeBody(tc.payload))
		})
	}
}
