package gmail

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"inboxcleaner/internal/model"
)

// OpenUnsubscribe opens the descriptor's URL in the default browser, or its
// address in the default mail client when there is no URL. Nothing is sent;
// the user finishes the unsubscription by hand.
func OpenUnsubscribe(d model.Descriptor) error {
	switch {
	case d.HasURL():
		return OpenBrowser(d.URL)
	case d.HasEmail():
		return open("mailto:" + strings.TrimSpace(d.Email))
	default:
		return fmt.Errorf("no unsubscribe target")
	}
}

// OpenBrowser opens an http(s) URL with the platform opener.
func OpenBrowser(url string) error {
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("refusing to open non-HTTP URL: %s", url)
	}
	return open(url)
}

func open(target string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{target}
	case "linux":
		cmd = "xdg-open"
		args = []string{target}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", target}
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return exec.Command(cmd, args...).Start()
}
