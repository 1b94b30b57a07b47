package model

import "strings"

// Header is a single message header. Names compare case-insensitively.
type Header struct {
	Name  string
	Value string
}

// Part is one node of a message body tree. Data is the base64url payload as
// the provider sends it.
type Part struct {
	MimeType string
	Charset  string
	Filename string
	Data     string
	Parts    []*Part
}

// Message is a fully fetched message with its headers in original order.
type Message struct {
	ID      string
	Headers []Header
	Payload *Part
	Snippet string
}

// Header returns the first value for name, or "" if absent.
func (m Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns every value for name in header order.
func (m Message) HeaderValues(name string) []string {
	var out []string
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// Descriptor is the unsubscribe target recovered from one message.
type Descriptor struct {
	URL   string // absolute http(s) URL
	Email string // address taken from a mailto: token
}

func (d Descriptor) HasURL() bool   { return d.URL != "" }
func (d Descriptor) HasEmail() bool { return d.Email != "" }
func (d Descriptor) Empty() bool    { return d.URL == "" && d.Email == "" }

// Candidate is a message that yielded a non-empty Descriptor.
type Candidate struct {
	MessageID   string
	Sender      string
	Subject     string
	Unsubscribe Descriptor
}

// Result is the outcome of scanning one listed message. At most one of
// Candidate, Skipped, Flagged or Err is set; none of them means the message
// carried no unsubscribe information.
type Result struct {
	MessageID string
	Sender    string
	Subject   string
	Candidate *Candidate
	Skipped   string // reason the message was left out, e.g. "allow-list"
	Flagged   bool   // deny-listed sender without a descriptor
	Err       error
}

// ScanStats counts what a scan saw. Counters only grow.
type ScanStats struct {
	Scanned      int
	LinksFound   int
	EmailsFound  int
	ActionsTaken int
	Errors       int
}

// AddCandidate bumps the link/email counters for c.
func (s *ScanStats) AddCandidate(c Candidate) {
	if c.Unsubscribe.HasURL() {
		s.LinksFound++
	}
	if c.Unsubscribe.HasEmail() {
		s.EmailsFound++
	}
}

// Label is a provider-side tag.
type Label struct {
	ID   string
	Name string
}
