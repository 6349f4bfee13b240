package output

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/fatih/color"
)

// TextFormatter formats data as human-readable text with color
type TextFormatter struct {
	interviewTemplate *template.Template
	protocolTemplate  *template.Template
	conflictTemplate  *template.Template
	quotaTemplate     *template.Template
}

// NewTextFormatter creates a new text formatter with color support
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		interviewTemplate: template.Must(template.New("interview").Funcs(templateFuncs()).Parse(interviewTemplate)),
		protocolTemplate:  template.Must(template.New("protocol").Funcs(templateFuncs()).Parse(protocolTemplate)),
		conflictTemplate:  template.Must(template.New("conflict").Funcs(templateFuncs()).Parse(conflictTemplate)),
		quotaTemplate:     template.Must(template.New("quota").Funcs(templateFuncs()).Parse(quotaTemplate)),
	}
}

// templateFuncs returns template functions for formatting
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"bold":    color.New(color.Bold).Sprint,
		"cyan":    color.CyanString,
		"green":   color.GreenString,
		"yellow":  color.YellowString,
		"red":     color.RedString,
		"blue":    color.BlueString,
		"magenta": color.MagentaString,
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"syncIcon": func(status string) string {
			switch status {
			case "synced":
				return color.GreenString("✓")
			case "pending":
				return color.YellowString("⏳")
			case "conflict":
				return color.RedString("⚠")
			default:
				return status
			}
		},
	}
}

// Format formats a single item as text
func (f *TextFormatter) Format(data interface{}) (string, error) {
	switch v := data.(type) {
	case *InterviewView:
		return f.formatTemplate(f.interviewTemplate, v)
	case *ProtocolView:
		return f.formatTemplate(f.protocolTemplate, v)
	case *ConflictView:
		return f.formatTemplate(f.conflictTemplate, v)
	case *QuotaView:
		return f.formatTemplate(f.quotaTemplate, v)
	default:
		return fmt.Sprintf("%+v\n", data), nil
	}
}

// FormatList formats a list of items as text
func (f *TextFormatter) FormatList(data interface{}) (string, error) {
	switch v := data.(type) {
	case []InterviewListItem:
		return f.formatInterviewList(v)
	case []ProtocolListItem:
		return f.formatProtocolList(v)
	case []ConflictListItem:
		return f.formatConflictList(v)
	default:
		return fmt.Sprintf("%+v\n", data), nil
	}
}

// formatTemplate applies a template to data
func (f *TextFormatter) formatTemplate(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Fallback to JSON on template error
		return f.fallbackToJSON(data)
	}
	return buf.String(), nil
}

func (f *TextFormatter) formatInterviewList(items []InterviewListItem) (string, error) {
	if len(items) == 0 {
		return "No interviews found\n", nil
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\n%s (%d):\n\n", color.New(color.Bold).Sprint("Interviews"), len(items)))

	icon := templateFuncs()["syncIcon"].(func(string) string)
	for _, item := range items {
		offlineStr := ""
		if item.OfflineCreated {
			offlineStr = color.YellowString(" [offline]")
		}

		buf.WriteString(fmt.Sprintf("  %s %s%s\n",
			icon(item.SyncStatus),
			color.New(color.Bold).Sprint(item.ID),
			offlineStr,
		))
		buf.WriteString(fmt.Sprintf("    Protocol: %s\n", color.CyanString(item.ProtocolID)))
		buf.WriteString(fmt.Sprintf("    Updated:  %s\n", item.LastUpdated.Format("2006-01-02 15:04:05")))
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

func (f *TextFormatter) formatProtocolList(items []ProtocolListItem) (string, error) {
	if len(items) == 0 {
		return "No protocols cached\n", nil
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\n%s (%d):\n\n", color.New(color.Bold).Sprint("Cached Protocols"), len(items)))

	for _, item := range items {
		buf.WriteString(fmt.Sprintf("  %s %s\n",
			color.New(color.Bold).Sprint(item.Name),
			color.New(color.Faint).Sprint(item.ID),
		))
		buf.WriteString(fmt.Sprintf("    Cached: %s  Assets: %d\n",
			item.CachedAt.Format("2006-01-02 15:04:05"),
			item.AssetCount,
		))
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

func (f *TextFormatter) formatConflictList(items []ConflictListItem) (string, error) {
	if len(items) == 0 {
		return "No unresolved conflicts\n", nil
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\n%s (%d):\n\n", color.New(color.Bold).Sprint("Unresolved Conflicts"), len(items)))

	for _, item := range items {
		buf.WriteString(fmt.Sprintf("  %s #%d %s\n",
			color.RedString("⚠"),
			item.ID,
			color.New(color.Bold).Sprint(item.InterviewID),
		))
		buf.WriteString(fmt.Sprintf("    Detected: %s\n", item.DetectedAt.Format("2006-01-02 15:04:05")))
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

// fallbackToJSON falls back to JSON formatting on error
func (f *TextFormatter) fallbackToJSON(data interface{}) (string, error) {
	formatter := NewJSONFormatter()
	return formatter.Format(data)
}

// View types for formatting

// InterviewView represents an interview for display
type InterviewView struct {
	ID             string    `json:"id" yaml:"id"`
	ProtocolID     string    `json:"protocol_id" yaml:"protocol_id"`
	SyncStatus     string    `json:"sync_status" yaml:"sync_status"`
	OfflineCreated bool      `json:"offline_created" yaml:"offline_created"`
	LastUpdated    time.Time `json:"last_updated" yaml:"last_updated"`
	Data           string    `json:"data,omitempty" yaml:"data,omitempty"`
}

// ProtocolView represents a cached protocol for display
type ProtocolView struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	CachedAt   time.Time `json:"cached_at" yaml:"cached_at"`
	AssetCount int       `json:"asset_count" yaml:"asset_count"`
}

// ConflictView represents a sync conflict for display
type ConflictView struct {
	ID          int64     `json:"id" yaml:"id"`
	InterviewID string    `json:"interview_id" yaml:"interview_id"`
	DetectedAt  time.Time `json:"detected_at" yaml:"detected_at"`
	LocalData   string    `json:"local_data" yaml:"local_data"`
	ServerData  string    `json:"server_data" yaml:"server_data"`
}

// QuotaView represents a storage quota report for display
type QuotaView struct {
	UsedBytes      uint64  `json:"used_bytes" yaml:"used_bytes"`
	TotalBytes     uint64  `json:"total_bytes" yaml:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes" yaml:"available_bytes"`
	PercentUsed    float64 `json:"percent_used" yaml:"percent_used"`
	Warning        string  `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// InterviewListItem represents a summary row for interview list views
type InterviewListItem struct {
	ID             string    `json:"id" yaml:"id"`
	ProtocolID     string    `json:"protocol_id" yaml:"protocol_id"`
	SyncStatus     string    `json:"sync_status" yaml:"sync_status"`
	OfflineCreated bool      `json:"offline_created" yaml:"offline_created"`
	LastUpdated    time.Time `json:"last_updated" yaml:"last_updated"`
}

// ProtocolListItem represents a summary row for protocol list views
type ProtocolListItem struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	CachedAt   time.Time `json:"cached_at" yaml:"cached_at"`
	AssetCount int       `json:"asset_count" yaml:"asset_count"`
}

// ConflictListItem represents a summary row for conflict list views
type ConflictListItem struct {
	ID          int64     `json:"id" yaml:"id"`
	InterviewID string    `json:"interview_id" yaml:"interview_id"`
	DetectedAt  time.Time `json:"detected_at" yaml:"detected_at"`
}

// Templates

const interviewTemplate = `
{{ bold "Interview:" }} {{ cyan .ID }}
{{ bold "Protocol:" }} {{ .ProtocolID }}
{{- if .OfflineCreated }}
{{ bold "Origin:" }} {{ yellow "created offline" }}
{{- end }}
{{- if .Data }}
{{ bold "Data:" }}
{{ .Data }}
{{- end }}

{{ bold "Updated:" }} {{ formatTime .LastUpdated }}
{{ bold "Sync Status:" }} {{ syncIcon .SyncStatus }} {{ .SyncStatus }}
`

const protocolTemplate = `
{{ bold "Protocol:" }} {{ cyan .Name }}
{{ bold "ID:" }} {{ .ID }}
{{ bold "Cached:" }} {{ formatTime .CachedAt }}
{{ bold "Assets:" }} {{ .AssetCount }}
`

const conflictTemplate = `
{{ bold "Conflict:" }} {{ red "#" }}{{ .ID }}
{{ bold "Interview:" }} {{ cyan .InterviewID }}
{{ bold "Detected:" }} {{ formatTime .DetectedAt }}

{{ bold "Local version:" }}
{{ .LocalData }}

{{ bold "Server version:" }}
{{ .ServerData }}
`

const quotaTemplate = `
{{ bold "Storage Quota" }}
{{ bold "Used:" }} {{ .UsedBytes }} / {{ .TotalBytes }} bytes ({{ printf "%.1f" .PercentUsed }}%)
{{ bold "Available:" }} {{ .AvailableBytes }} bytes
{{- if .Warning }}
{{ red .Warning }}
{{- end }}
`
