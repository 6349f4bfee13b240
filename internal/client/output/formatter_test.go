package output

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

func TestJSONFormatter(t *testing.T) {
	formatter := NewJSONFormatter()

	view := &InterviewView{
		ID:             "offline-abc",
		ProtocolID:     "proto-1",
		SyncStatus:     "pending",
		OfflineCreated: true,
		LastUpdated:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	output, err := formatter.Format(view)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if !strings.Contains(output, "offline-abc") {
		t.Errorf("Output does not contain interview id")
	}
	if !strings.Contains(output, "proto-1") {
		t.Errorf("Output does not contain protocol id")
	}
}

func TestYAMLFormatter(t *testing.T) {
	formatter := NewYAMLFormatter()

	view := &ProtocolView{
		ID:         "proto-1",
		Name:       "Household Survey",
		CachedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		AssetCount: 3,
	}

	output, err := formatter.Format(view)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if !strings.Contains(output, "Household Survey") {
		t.Errorf("Output does not contain protocol name")
	}
	if !strings.Contains(output, "asset_count: 3") {
		t.Errorf("Output does not contain asset count")
	}
}

func TestTextFormatter(t *testing.T) {
	formatter := NewTextFormatter()

	view := &InterviewView{
		ID:             "srv-42",
		ProtocolID:     "proto-1",
		SyncStatus:     "synced",
		OfflineCreated: false,
		LastUpdated:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	output, err := formatter.Format(view)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if !strings.Contains(output, "srv-42") {
		t.Errorf("Output does not contain interview id")
	}
	if !strings.Contains(output, "synced") {
		t.Errorf("Output does not contain sync status")
	}
}

func TestTextFormatterEmptyLists(t *testing.T) {
	formatter := NewTextFormatter()

	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{"interviews", []InterviewListItem{}, "No interviews found"},
		{"protocols", []ProtocolListItem{}, "No protocols cached"},
		{"conflicts", []ConflictListItem{}, "No unresolved conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := formatter.FormatList(tt.data)
			if err != nil {
				t.Fatalf("FormatList failed: %v", err)
			}
			if !strings.Contains(output, tt.want) {
				t.Errorf("expected output to contain %q, got %q", tt.want, output)
			}
		})
	}
}

func TestNewFormatterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewFormatter("xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestFormatInterviewList(t *testing.T) {
	interviews := []*storage.Interview{
		{
			ID:             "offline-1",
			ProtocolID:     "proto-1",
			SyncStatus:     storage.SyncStatusPending,
			OfflineCreated: true,
			LastUpdated:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	output, err := FormatInterviewList(interviews, "text")
	if err != nil {
		t.Fatalf("FormatInterviewList failed: %v", err)
	}

	if !strings.Contains(output, "offline-1") {
		t.Errorf("Output does not contain interview id")
	}
	if !strings.Contains(output, "offline") {
		t.Errorf("Output does not mark offline-created interviews")
	}
}

func TestFormatConflictShowsBothSides(t *testing.T) {
	c := &storage.Conflict{
		ID:          7,
		InterviewID: "srv-9",
		DetectedAt:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		LocalData:   []byte(`{"side":"local"}`),
		ServerData:  []byte(`{"side":"server"}`),
	}

	output, err := FormatConflict(c, "text")
	if err != nil {
		t.Fatalf("FormatConflict failed: %v", err)
	}

	if !strings.Contains(output, "local") || !strings.Contains(output, "server") {
		t.Errorf("Output does not show both conflict sides: %q", output)
	}
}
