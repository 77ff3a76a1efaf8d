package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

// ScoutAlert is the content of a match notification.
type ScoutAlert struct {
	ScoutName    string
	Summary      string
	KeyFindings  []string
	SourceURL    string
	LocationCity string
}

// Subject returns "Scout-Alarm: <name>" with the city in parentheses when set.
func (a ScoutAlert) Subject() string {
	if a.LocationCity != "" {
		return fmt.Sprintf("Scout-Alarm: %s (%s)", a.ScoutName, a.LocationCity)
	}
	return "Scout-Alarm: " + a.ScoutName
}

// stripTags removes any markup the model put into summaries or findings;
// the template escapes whatever remains.
var stripTags = bluemonday.StrictPolicy()

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html lang="de">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: 'DM Sans', -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1c1917; margin: 0; padding: 0; background-color: #fafaf9; }
    .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 12px; overflow: hidden; }
    .header { background: #ea726e; color: white; padding: 32px 24px; text-align: center; }
    .header h1 { margin: 0; font-family: 'Crimson Pro', Georgia, serif; font-size: 24px; font-weight: 600; }
    .header .subtitle { margin: 8px 0 0; font-size: 14px; opacity: 0.9; }
    .content { padding: 24px; }
    .summary { font-size: 18px; margin-bottom: 24px; padding: 16px; background: #fafaf9; border-radius: 8px; border-left: 4px solid #ea726e; }
    .findings { border: 1px solid #e7e5e4; border-radius: 8px; padding: 16px; margin-bottom: 24px; }
    .findings h3 { margin: 0 0 12px; font-size: 14px; color: #57534e; text-transform: uppercase; letter-spacing: 0.5px; }
    .findings li { margin-bottom: 8px; }
    .cta { display: inline-block; background: #ea726e; color: white; padding: 14px 28px; border-radius: 8px; text-decoration: none; font-weight: 500; }
    .footer { padding: 24px; text-align: center; color: #a8a29e; font-size: 13px; border-top: 1px solid #e7e5e4; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Scout-Alarm</h1>
      <p class="subtitle">{{.ScoutName}}{{if .LocationCity}} ({{.LocationCity}}){{end}}</p>
    </div>
    <div class="content">
      <div class="summary">{{.Summary}}</div>
      {{- if .KeyFindings}}
      <div class="findings">
        <h3>Kernpunkte</h3>
        <ul>{{range .KeyFindings}}<li>{{.}}</li>{{end}}</ul>
      </div>
      {{- end}}
      <a href="{{.SourceURL}}" class="cta">Quelle ansehen</a>
    </div>
    <div class="footer">
      <p>Diese E-Mail wurde automatisch von Dorfkönig gesendet.</p>
    </div>
  </div>
</body>
</html>
`))

// RenderAlert renders the alert email body.
func RenderAlert(a ScoutAlert) (string, error) {
	data := a
	data.Summary = stripTags.Sanitize(a.Summary)
	data.KeyFindings = make([]string, 0, len(a.KeyFindings))
	for _, f := range a.KeyFindings {
		if clean := stripTags.Sanitize(f); clean != "" {
			data.KeyFindings = append(data.KeyFindings, clean)
		}
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render alert: %w", err)
	}
	return buf.String(), nil
}
