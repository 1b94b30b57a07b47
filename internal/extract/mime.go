package extract

import (
	"encoding/base64"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"inboxcleaner/internal/model"
)

// DecodeBody walks a body tree depth-first and concatenates every text/plain
// and text/html part in structural order. A payload without sub-parts is
// decoded on its own regardless of its media type. Parts whose payload cannot
// be decoded contribute nothing.
func DecodeBody(payload *model.Part) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) == 0 {
		return decodePart(payload)
	}
	var b strings.Builder
	collectText(&b, payload.Parts)
	return b.String()
}

func collectText(b *strings.Builder, parts []*model.Part) {
	for _, p := range parts {
		if p == nil {
			continue
		}
		if isText(p.MimeType) {
			b.WriteString(decodePart(p))
		}
		if len(p.Parts) > 0 {
			collectText(b, p.Parts)
		}
	}
}

func isText(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "text/plain" || mt == "text/html"
}

func decodePart(p *model.Part) string {
	if p.Data == "" {
		return ""
	}
	raw, ok := decodeBase64URL(p.Data)
	if !ok {
		return ""
	}
	return decodeText(raw, p.Charset)
}

func decodeBase64URL(data string) ([]byte, bool) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return nil, false
		}
	}
	return b, true
}

// decodeText converts raw bytes in the declared charset to UTF-8. Unknown
// charsets are read as UTF-8; invalid sequences become U+FFFD.
func decodeText(raw []byte, charset string) string {
	enc := lookupCharset(charset)
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(out)
}

func lookupCharset(charset string) encoding.Encoding {
	cs := strings.Trim(strings.TrimSpace(charset), `"`)
	if cs == "" {
		return unicode.UTF8
	}
	enc, err := htmlindex.Get(cs)
	if err != nil || enc == nil {
		return unicode.UTF8
	}
	return enc
}
