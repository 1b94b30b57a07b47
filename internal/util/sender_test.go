package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Name <User@Example.COM>`, "user@example.com"},
		{`"Name" <user+news@Example.com>`, "user@example.com"},
		{`user+tag@EXAMPLE.com`, "user@example.com"},
		{`user.name+tag@EXAMPLE.com`, "user.name@example.com"},
		{`bad address`, ""},
		{`"A" <not-an-email> , "B" <c@D.com>`, "c@d.com"},
		{``, ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeSender(tc.in), "NormalizeSender(%q)", tc.in)
	}
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "@example.com", SenderDomain("news@example.com"))
	assert.Equal(t, "", SenderDomain("nobody"))
	assert.Equal(t, "", SenderDomain("trailing@"))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Twitter <notify@twitter.com>`, "Twitter"},
		{`"Shop, Inc" <deals@shop.example>`, "Shop, Inc"},
		{`jane.doe+promo@example.com`, "Jane Doe"},
		{`<news@example.com>`, "News"},
		{`Unknown`, "Unknown"},
		{``, "Unknown"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, DisplayName(tc.in), "DisplayName(%q)", tc.in)
	}
}
