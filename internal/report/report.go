// Package report renders scan candidates as text and HTML.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"inboxcleaner/internal/model"
)

const (
	TextFileName = "unsubscribe_list.txt"
	HTMLFileName = "unsubscribe_list.html"
)

// Files names the artifacts written by WriteFiles.
type Files struct {
	Text string
	HTML string
}

// WriteFiles writes both reports into dir, replacing earlier ones. A failure
// writing one file does not prevent the other from being written.
func WriteFiles(dir string, candidates []model.Candidate) (Files, error) {
	files := Files{
		Text: filepath.Join(dir, TextFileName),
		HTML: filepath.Join(dir, HTMLFileName),
	}
	var errs []error
	if err := writeFile(files.Text, func(w io.Writer) error { return WriteText(w, candidates) }); err != nil {
		errs = append(errs, fmt.Errorf("write text report: %w", err))
	}
	if err := writeFile(files.HTML, func(w io.Writer) error { return WriteHTML(w, candidates) }); err != nil {
		errs = append(errs, fmt.Errorf("write html report: %w", err))
	}
	return files, errors.Join(errs...)
}

// writeFile renders into a temp file next to path and renames it into
// place, so a failed render leaves the previous report intact.
func writeFile(path string, render func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	err = render(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// WriteText renders the plain-text listing.
func WriteText(w io.Writer, candidates []model.Candidate) error {
	var b strings.Builder
	b.WriteString("Unsubscribe List\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Sender)
		fmt.Fprintf(&b, "   Subject: %s\n", c.Subject)
		if c.Unsubscribe.HasURL() {
			fmt.Fprintf(&b, "   Unsubscribe URL: %s\n", c.Unsubscribe.URL)
		}
		if c.Unsubscribe.HasEmail() {
			fmt.Fprintf(&b, "   Unsubscribe Email: %s\n", c.Unsubscribe.Email)
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	// Links lifted from HTML bodies still carry entities such as &amp;;
	// decode them once so the template escapes them exactly once.
	"href": html.UnescapeString,
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Unsubscribe List</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background: #fff; }
        h1 { color: #333; }
        .email { margin-bottom: 20px; padding: 15px; background: #f5f5f5; border-left: 4px solid #4285f4; }
        .sender { font-weight: bold; color: #1a73e8; font-size: 14px; }
        .subject { color: #666; font-style: italic; margin-top: 5px; }
        .unsubscribe { margin-top: 8px; }
        a { color: #1a73e8; text-decoration: none; font-weight: bold; }
        a:hover { text-decoration: underline; }
        .unsubscribe-btn { display: inline-block; padding: 8px 16px; background: #1a73e8; color: white; border-radius: 4px; margin-top: 8px; }
        .unsubscribe-btn:hover { background: #1557b0; }
    </style>
</head>
<body>
    <h1>Unsubscribe List</h1>
    <p>Found {{len .}} emails with unsubscribe links</p>
{{- range $i, $c := .}}
<div class="email">
<div class="sender">{{inc $i}}. {{$c.Sender}}</div>
<div class="subject">Subject: {{$c.Subject}}</div>
{{- if $c.Unsubscribe.URL}}
<div class="unsubscribe"><a href="{{href $c.Unsubscribe.URL}}" target="_blank" rel="noopener" class="unsubscribe-btn">Unsubscribe</a></div>
{{- end}}
{{- if $c.Unsubscribe.Email}}
<div class="unsubscribe">Email: <a href="mailto:{{$c.Unsubscribe.Email}}">{{$c.Unsubscribe.Email}}</a></div>
{{- end}}
</div>
{{- end}}
</body>
</html>
`))

// WriteHTML renders the HTML report with clickable links. Sender and subject
// are escaped.
func WriteHTML(w io.Writer, candidates []model.Candidate) error {
	return htmlTmpl.Execute(w, candidates)
}
