package output

import (
	"encoding/json"
	"fmt"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// FormatInterview formats an interview for display. data is the session
// state to show, already decrypted by the caller when appropriate.
func FormatInterview(iv *storage.Interview, data []byte, format string) (string, error) {
	formatter, err := NewFormatter(format)
	if err != nil {
		return "", err
	}

	view := &InterviewView{
		ID:             iv.ID,
		ProtocolID:     iv.ProtocolID,
		SyncStatus:     string(iv.SyncStatus),
		OfflineCreated: iv.OfflineCreated,
		LastUpdated:    iv.LastUpdated,
		Data:           indentJSON(data),
	}

	out, err := formatter.Format(view)
	if err != nil {
		return "", fmt.Errorf("failed to format interview: %w", err)
	}
	return out, nil
}

// FormatInterviewList formats a list of interviews for display
func FormatInterviewList(interviews []*storage.Interview, format string) (string, error) {
	formatter, err := NewFormatter(format)
	if err != nil {
		return "", err
	}

	items := make([]InterviewListItem, len(interviews))
	for i, iv := range interviews {
		items[i] = InterviewListItem{
			ID:             iv.ID,
			ProtocolID:     iv.ProtocolID,
			SyncStatus:     string(iv.SyncStatus),
			OfflineCreated: iv.OfflineCreated,
			LastUpdated:    iv.LastUpdated,
		}
	}

	out, err := formatter.FormatList(items)
	if err != nil {
		return "", fmt.Errorf("failed to format interview list: %w", err)
	}
	return out, nil
}

// FormatProtocolList formats a list of cached protocols for display.
// assetCounts maps protocol id to the number of cached assets.
func FormatProtocolList(protocols []*storage.Protocol, assetCounts map[string]int, format string) (string, error) {
	formatter, err := NewFormatter(format)
	if err != nil {
		return "", err
	}

	items := make([]ProtocolListItem, len(protocols))
	for i, p := range protocols {
		items[i] = ProtocolListItem{
			ID:         p.ID,
			Name:       p.Name,
			CachedAt:   p.CachedAt,
			AssetCount: assetCounts[p.ID],
		}
	}

	out, err := formatter.FormatList(items)
	if err != nil {
		return "", fmt.Errorf("failed to format protocol list: %w", err)
	}
	return out, nil
}

// FormatConflict formats one conflict with both snapshots for display
func FormatConflict(c *storage.Conflict, format string) (string, error) {
	formatter, err := NewFormatter(format)
	if err != nil {
		return "", err
	}

	view := &ConflictView{
		ID:          c.ID,
		InterviewID: c.InterviewID,
		DetectedAt:  c.DetectedAt,
		LocalData:   indentJSON(c.LocalData),
		ServerData:  indentJSON(c.ServerData),
	}

	out, err := formatter.Format(view)
	if err != nil {
		return "", fmt.Errorf("failed to format conflict: %w", err)
	}
	return out, nil
}

// FormatConflictList formats unresolved conflicts for display
func FormatConflictList(conflicts []*storage.Conflict, format string) (string, error) {
	formatter, err := NewFormatter(format)
	if err != nil {
		return "", err
	}

	items := make([]ConflictListItem, len(conflicts))
	for i, c := range conflicts {
		items[i] = ConflictListItem{
			ID:          c.ID,
			InterviewID: c.InterviewID,
			DetectedAt:  c.DetectedAt,
		}
	}

	out, err := formatter.FormatList(items)
	if err != nil {
		return "", fmt.Errorf("failed to format conflict list: %w", err)
	}
	return out, nil
}

// FormatError formats an error message
func FormatError(err error) string {
	return fmt.Sprintf("Error: %v\n", err)
}

// FormatSuccess formats a success message
func FormatSuccess(message string) string {
	return fmt.Sprintf("%s\n", message)
}

// indentJSON pretty-prints JSON for text output, passing malformed
// payloads through unchanged.
func indentJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var buf json.RawMessage = data
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(pretty)
}
