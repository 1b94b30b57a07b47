package tui

import (
	"fmt"
	"strings"
	"time"

	"inboxcleaner/internal/gmail"
	"inboxcleaner/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// GmailMessageURL is the web view of a message.
const GmailMessageURL = "https://mail.google.com/mail/u/0/#inbox/%s"

// Opener hands unsubscribe targets and links to the desktop.
type Opener interface {
	Unsubscribe(d model.Descriptor) error
	Browse(url string) error
}

// SystemOpener uses the platform's browser and mail client.
type SystemOpener struct{}

func (SystemOpener) Unsubscribe(d model.Descriptor) error { return gmail.OpenUnsubscribe(d) }
func (SystemOpener) Browse(url string) error              { return gmail.OpenBrowser(url) }

type viewState int

const (
	viewSenders  viewState = iota // candidates grouped by sender
	viewMessages                  // candidates of one sender
	viewDetail                    // one candidate
)

type actionResultMsg struct {
	action string
	err    error
}

type statusMsg string

// Model browses the candidates of one run.
type Model struct {
	opener Opener
	webUI  bool // message ids are Gmail ids

	groups []senderGroup
	status string

	view          viewState
	selectedGroup *senderGroup
	selected      *model.Candidate

	sendersList  list.Model
	messagesList list.Model
	detail       viewport.Model

	width, height int
}

// GmailSource is the ledger source name of runs scanned from Gmail. Only
// those runs can open messages in the web UI.
const GmailSource = "gmail"

// New builds a review model over candidates recorded from source. title
// heads the sender list.
func New(title, source string, candidates []model.Candidate, opener Opener) *Model {
	if opener == nil {
		opener = SystemOpener{}
	}
	groups := groupBySender(candidates)

	sl := list.New(groupsToItems(groups), list.NewDefaultDelegate(), 0, 0)
	sl.Title = fmt.Sprintf("%s (%d senders, %d messages)", title, len(groups), len(candidates))
	// esc goes back a level, it must not quit from the top list.
	sl.KeyMap.Quit.SetKeys("q")

	ml := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	ml.KeyMap.Quit.SetKeys("q")

	return &Model{
		opener:       opener,
		webUI:        source == GmailSource,
		groups:       groups,
		view:         viewSenders,
		sendersList:  sl,
		messagesList: ml,
		detail:       viewport.New(0, 0),
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listH := msg.Height - 4 // room for footer
		m.sendersList.SetSize(msg.Width, listH)
		m.messagesList.SetSize(msg.Width, listH)
		m.detail.Width = msg.Width
		m.detail.Height = msg.Height - 6
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case actionResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = msg.action
		}
		return m, clearStatusAfter(2 * time.Second)

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewSenders:
		m.sendersList, cmd = m.sendersList.Update(msg)
	case viewMessages:
		m.messagesList, cmd = m.messagesList.Update(msg)
	case viewDetail:
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	var cmd tea.Cmd
	switch m.view {
	case viewSenders:
		if m.sendersList.FilterState() == list.Filtering {
			m.sendersList, cmd = m.sendersList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.enterGroup()
		case "u":
			if gi, ok := m.sendersList.SelectedItem().(groupItem); ok {
				return m, m.unsubscribeCmd(gi.target())
			}
			return m, nil
		}
		m.sendersList, cmd = m.sendersList.Update(msg)
		return m, cmd

	case viewMessages:
		if m.messagesList.FilterState() == list.Filtering {
			m.messagesList, cmd = m.messagesList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewSenders
			m.selectedGroup = nil
			return m, nil
		case "enter":
			return m.enterCandidate()
		case "u":
			if ci, ok := m.messagesList.SelectedItem().(candidateItem); ok {
				return m, m.unsubscribeCmd(ci.Unsubscribe)
			}
			return m, nil
		}
		m.messagesList, cmd = m.messagesList.Update(msg)
		return m, cmd

	case viewDetail:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewMessages
			m.selected = nil
			return m, nil
		case "u":
			if m.selected != nil {
				return m, m.unsubscribeCmd(m.selected.Unsubscribe)
			}
			return m, nil
		case "o":
			if !m.webUI {
				m.status = "Messages from a local archive have no web view"
				return m, clearStatusAfter(2 * time.Second)
			}
			if m.selected != nil {
				return m, m.browseCmd(fmt.Sprintf(GmailMessageURL, m.selected.MessageID))
			}
			return m, nil
		}
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) enterGroup() (tea.Model, tea.Cmd) {
	gi, ok := m.sendersList.SelectedItem().(groupItem)
	if !ok {
		return m, nil
	}
	g := gi.senderGroup
	m.selectedGroup = &g
	m.messagesList.SetItems(candidatesToItems(g.Candidates))
	m.messagesList.ResetSelected()
	m.messagesList.Title = fmt.Sprintf("%s <%s> (%d messages)", g.Name, g.Address, len(g.Candidates))
	m.view = viewMessages
	return m, nil
}

func (m *Model) enterCandidate() (tea.Model, tea.Cmd) {
	ci, ok := m.messagesList.SelectedItem().(candidateItem)
	if !ok {
		return m, nil
	}
	c := ci.Candidate
	m.selected = &c
	m.detail.SetContent(detailContent(c))
	m.detail.GotoTop()
	m.view = viewDetail
	return m, nil
}

func (m *Model) unsubscribeCmd(d model.Descriptor) tea.Cmd {
	return func() tea.Msg {
		if err := m.opener.Unsubscribe(d); err != nil {
			return actionResultMsg{action: "Unsubscribe", err: err}
		}
		if d.HasURL() {
			return actionResultMsg{action: "Opened unsubscribe link in browser"}
		}
		return actionResultMsg{action: "Opened unsubscribe email in mail client"}
	}
}

func (m *Model) browseCmd(url string) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "Opened message in browser", err: m.opener.Browse(url)}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func (m *Model) View() string {
	if len(m.groups) == 0 {
		return "No unsubscribe candidates in this run.\n"
	}

	var b strings.Builder
	switch m.view {
	case viewSenders:
		b.WriteString(m.sendersList.View())
		b.WriteString("\n")
		b.WriteString(sendersFooter())
	case viewMessages:
		b.WriteString(m.messagesList.View())
		b.WriteString("\n")
		b.WriteString(messagesFooter())
	case viewDetail:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(detailFooter(m.webUI))
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}
