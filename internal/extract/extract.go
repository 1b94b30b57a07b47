// Package extract recovers unsubscribe targets from message headers and
// bodies.
package extract

import (
	"regexp"
	"strings"

	"inboxcleaner/internal/model"
)

const (
	unknownSender = "Unknown"
	noSubject     = "No subject"
)

var (
	mailtoToken = regexp.MustCompile(`<mailto:([^>]+)>`)
	httpToken   = regexp.MustCompile(`<(https?://[^>]+)>`)

	// Tried in order; the first pattern with any match wins.
	bodyPatterns = []*regexp.Regexp{
		bodyURL(`unsubscribe`),
		bodyURL(`/optout`),
		bodyURL(`/opt-out`),
	}
)

// urlChar excludes every Unicode whitespace rune, not only the ASCII ones
// matched by \s, plus the delimiters < > and ".
const urlChar = `[^\s\v\x{1C}-\x{1F}\x{85}\x{A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}<>"]`

func bodyURL(marker string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)https?://` + urlChar + `+` + marker + urlChar + `*`)
}

// Find returns the unsubscribe descriptor for a message given its headers and
// decoded body. The body is only consulted when no List-Unsubscribe header
// yields anything. ok is false when nothing was found.
func Find(headers []model.Header, body string) (model.Descriptor, bool) {
	if d := FromHeaders(headers); !d.Empty() {
		return d, true
	}
	if d := FromBody(body); !d.Empty() {
		return d, true
	}
	return model.Descriptor{}, false
}

// FromHeaders scans every List-Unsubscribe header in order. For each field the
// first token found is kept; later headers never overwrite it.
func FromHeaders(headers []model.Header) model.Descriptor {
	var d model.Descriptor
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "List-Unsubscribe") {
			continue
		}
		if d.Email == "" {
			if m := mailtoToken.FindStringSubmatch(h.Value); m != nil {
				d.Email = m[1]
			}
		}
		if d.URL == "" {
			if m := httpToken.FindStringSubmatch(h.Value); m != nil {
				d.URL = m[1]
			}
		}
		if d.Email != "" && d.URL != "" {
			break
		}
	}
	return d
}

// FromBody returns the first URL matched by the first body pattern that
// matches anything. It never sets Email.
func FromBody(body string) model.Descriptor {
	if body == "" {
		return model.Descriptor{}
	}
	for _, re := range bodyPatterns {
		if u := re.FindString(body); u != "" {
			return model.Descriptor{URL: u}
		}
	}
	return model.Descriptor{}
}

// Message builds a Candidate from a fetched message. The body is decoded
// only when the headers carry no unsubscribe information.
func Message(msg model.Message) (model.Candidate, bool) {
	d := FromHeaders(msg.Headers)
	if d.Empty() {
		d = FromBody(DecodeBody(msg.Payload))
	}
	if d.Empty() {
		return model.Candidate{}, false
	}
	return model.Candidate{
		MessageID:   msg.ID,
		Sender:      Sender(msg),
		Subject:     Subject(msg),
		Unsubscribe: d,
	}, true
}

// Sender returns the From header or a placeholder.
func Sender(msg model.Message) string {
	if v := msg.Header("From"); v != "" {
		return v
	}
	return unknownSender
}

// Subject returns the Subject header or a placeholder.
func Subject(msg model.Message) string {
	if v := msg.Header("Subject"); v != "" {
		return v
	}
	return noSubject
}
