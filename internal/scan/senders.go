package scan

import (
	"strings"

	"inboxcleaner/internal/util"
)

// senderSet matches normalized addresses. An entry starting with "@" matches
// a whole domain.
type senderSet map[string]struct{}

func newSenderSet(entries []string) senderSet {
	set := make(senderSet, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if strings.HasPrefix(e, "@") {
			set[e] = struct{}{}
			continue
		}
		if n := util.NormalizeSender(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (s senderSet) match(addr string) bool {
	if len(s) == 0 || addr == "" {
		return false
	}
	if _, ok := s[addr]; ok {
		return true
	}
	if d := util.SenderDomain(addr); d != "" {
		_, ok := s[d]
		return ok
	}
	return false
}
