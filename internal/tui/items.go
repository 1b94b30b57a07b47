package tui

import (
	"fmt"
	"sort"

	"inboxcleaner/internal/model"
	"inboxcleaner/internal/util"

	"github.com/charmbracelet/bubbles/list"
)

// senderGroup collects the candidates of one normalized sender.
type senderGroup struct {
	Name       string
	Address    string
	Candidates []model.Candidate
}

// groupBySender groups candidates by normalized sender, biggest group
// first. Candidates keep scan order inside a group.
func groupBySender(cands []model.Candidate) []senderGroup {
	index := make(map[string]int)
	var groups []senderGroup
	for _, c := range cands {
		key := util.NormalizeSender(c.Sender)
		if key == "" {
			key = c.Sender
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, senderGroup{Name: util.DisplayName(c.Sender), Address: key})
		}
		groups[i].Candidates = append(groups[i].Candidates, c)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Candidates) != len(groups[j].Candidates) {
			return len(groups[i].Candidates) > len(groups[j].Candidates)
		}
		return groups[i].Address < groups[j].Address
	})
	return groups
}

// target picks the descriptor used for the whole group: the first one with a
// URL, else the first one.
func (g senderGroup) target() model.Descriptor {
	for _, c := range g.Candidates {
		if c.Unsubscribe.HasURL() {
			return c.Unsubscribe
		}
	}
	return g.Candidates[0].Unsubscribe
}

type groupItem struct {
	senderGroup
}

func (g groupItem) FilterValue() string { return g.Name + " " + g.Address }
func (g groupItem) Title() string {
	return fmt.Sprintf("%s%s (%d)", indicator(g.target()), g.Name, len(g.Candidates))
}
func (g groupItem) Description() string { return g.Address }

type candidateItem struct {
	model.Candidate
}

func (c candidateItem) FilterValue() string { return c.Subject }
func (c candidateItem) Title() string       { return indicator(c.Unsubscribe) + c.Subject }
func (c candidateItem) Description() string {
	if c.Unsubscribe.HasURL() {
		return c.Unsubscribe.URL
	}
	return "mailto:" + c.Unsubscribe.Email
}

// indicator marks entries that can be opened in a browser.
func indicator(d model.Descriptor) string {
	if d.HasURL() {
		return "@ "
	}
	return "  "
}

func groupsToItems(groups []senderGroup) []list.Item {
	items := make([]list.Item, len(groups))
	for i, g := range groups {
		items[i] = groupItem{g}
	}
	return items
}

func candidatesToItems(cands []model.Candidate) []list.Item {
	items := make([]list.Item, len(cands))
	for i, c := range cands {
		items[i] = candidateItem{c}
	}
	return items
}
