package tui

import (
	"fmt"
	"strings"

	"inboxcleaner/internal/model"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingBottom(1)

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Underline(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)
)

func detailContent(c model.Candidate) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("From: %s\nSubject: %s\nMessage: %s", c.Sender, c.Subject, c.MessageID)))
	b.WriteString("\n\n")
	if c.Unsubscribe.HasURL() {
		b.WriteString("Unsubscribe link:\n  " + linkStyle.Render(c.Unsubscribe.URL) + "\n")
	}
	if c.Unsubscribe.HasEmail() {
		b.WriteString("Unsubscribe email:\n  " + linkStyle.Render("mailto:"+c.Unsubscribe.Email) + "\n")
	}
	return b.String()
}

func sendersFooter() string {
	return footerStyle.Render("enter: open  u: unsubscribe  /: filter  q: quit  @=link available")
}

func messagesFooter() string {
	return footerStyle.Render("enter: details  u: unsubscribe  esc: back  q: quit")
}

func detailFooter(webUI bool) string {
	if !webUI {
		return footerStyle.Render("u: unsubscribe  esc: back  q: quit")
	}
	return footerStyle.Render("u: unsubscribe  o: open in gmail  esc: back  q: quit")
}
