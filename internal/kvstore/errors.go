package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Message is one entry of the messages array splunkd attaches to responses.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StatusError reports a non-2xx response from splunkd.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Messages   []Message
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Status)
	if texts := messageTexts(e.Messages, ""); texts != "" {
		b.WriteString(": ")
		b.WriteString(texts)
	}
	return b.String()
}

// IsNotFound reports whether err is a 404 from splunkd.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func newStatusError(method, path string, resp *http.Response, body []byte) *StatusError {
	statusErr := &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	if statusErr.Status == "" {
		statusErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	var payload struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		statusErr.Messages = payload.Messages
	}
	return statusErr
}

// messageTexts joins message texts, optionally restricted to one type.
func messageTexts(messages []Message, onlyType string) string {
	var texts []string
	for _, msg := range messages {
		if onlyType != "" && !strings.EqualFold(msg.Type, onlyType) {
			continue
		}
		if text := strings.TrimSpace(msg.Text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "; ")
}
