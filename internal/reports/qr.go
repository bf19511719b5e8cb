package reports

import (
	"fmt"
	"net/url"
	"strings"
)

// QR is a code image fetched from an external service. When the image cannot
// load, templates hide it and show Code instead.
type QR struct {
	Code string
	URL  string
}

// NewQR builds the image URL for code. An empty code gives nil; a broken
// service URL gives a QR with only the code text.
func NewQR(serviceURL, code string, size int) *QR {
	code = strings.TrimSpace(code)
	if code == "" || code == Placeholder {
		return nil
	}
	u, err := url.Parse(serviceURL)
	if serviceURL == "" || err != nil {
		return &QR{Code: code}
	}
	q := u.Query()
	q.Set("data", code)
	if size > 0 {
		q.Set("size", fmt.Sprintf("%dx%d", size, size))
	}
	u.RawQuery = q.Encode()
	return &QR{Code: code, URL: u.String()}
}
