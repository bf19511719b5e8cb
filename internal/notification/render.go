package notification

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/pkg/errors"
)

//go:embed templates/email.html
var templateFS embed.FS

var emailLayout = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/email.html"))

var ErrBadTemplate = errors.New("template could not be rendered")

// renderText fills {{.placeholders}} for push and subjects.
func renderText(src string, data map[string]interface{}) (string, error) {
	t, err := texttemplate.New("text").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", errors.Wrap(ErrBadTemplate, err.Error())
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(ErrBadTemplate, err.Error())
	}
	return buf.String(), nil
}

// renderHTML fills placeholders with escaped values and wraps the result
// in the mail layout.
func renderHTML(subject, src string, data map[string]interface{}, now time.Time) (string, error) {
	t, err := htmltemplate.New("body").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", errors.Wrap(ErrBadTemplate, err.Error())
	}
	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return "", errors.Wrap(ErrBadTemplate, err.Error())
	}

	var out bytes.Buffer
	err = emailLayout.Execute(&out, struct {
		Subject string
		Body    htmltemplate.HTML
		SentAt  time.Time
	}{subject, htmltemplate.HTML(body.String()), now})
	if err != nil {
		return "", errors.Wrap(err, "render mail layout")
	}
	return out.String(), nil
}
