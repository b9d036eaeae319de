package providers

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"mewayz-notifications/internal/models"
)

var emailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;font-family:Arial,Helvetica,sans-serif;background:#f4f4f7;">
  <div style="max-width:600px;margin:24px auto;background:#ffffff;border-radius:8px;overflow:hidden;">
    <div style="background:{{.Accent}};padding:20px;">
      <h1 style="margin:0;color:#ffffff;font-size:20px;">{{.Title}}</h1>
    </div>
    <div style="padding:24px;color:#333333;font-size:15px;line-height:1.5;">
      <p style="margin:0 0 16px 0;">{{.Message}}</p>
      {{- if .ActionURL}}
      <a href="{{.ActionURL}}" style="display:inline-block;padding:10px 20px;background:{{.Accent}};color:#ffffff;text-decoration:none;border-radius:4px;">{{.ActionText}}</a>
      {{- end}}
    </div>
    <div style="padding:16px 24px;border-top:1px solid #eeeeee;color:#888888;font-size:12px;">
      Sent {{.Timestamp}} &middot; Priority {{.Priority}}/10 &middot; {{.Type}}
    </div>
  </div>
</body>
</html>`))

type emailView struct {
	Title      string
	Message    string
	ActionURL  string
	ActionText string
	Accent     string
	Timestamp  string
	Priority   int
	Type       models.Type
}

// AccentColor maps a priority to the header colour of the email.
func AccentColor(priority int) string {
	switch {
	case priority >= 8:
		return "#dc3545"
	case priority >= 5:
		return "#f0ad4e"
	default:
		return "#0d6efd"
	}
}

// RenderEmail renders the HTML body for n.
func RenderEmail(n *models.Notification) (string, error) {
	actionText := n.ActionText
	if n.ActionURL != "" && actionText == "" {
		actionText = "View"
	}
	view := emailView{
		Title:      n.Title,
		Message:    n.Message,
		ActionURL:  n.ActionURL,
		ActionText: actionText,
		Accent:     AccentColor(n.Priority),
		Timestamp:  n.CreatedAt.UTC().Format(time.RFC1123),
		Priority:   n.Priority,
		Type:       n.Type,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}
