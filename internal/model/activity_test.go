package model

import (
	"testing"
	"time"

	"crm-service/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityIsOverdue(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		activity Activity
		want     bool
	}{
		{"open task past due", Activity{Type: ActivityTask, DueDate: &past}, true},
		{"open task due later", Activity{Type: ActivityTask, DueDate: &future}, false},
		{"open task due now", Activity{Type: ActivityTask, DueDate: &now}, false},
		{"completed task past due", Activity{Type: ActivityTask, DueDate: &past, IsCompleted: true}, false},
		{"task without due date", Activity{Type: ActivityTask}, false},
		{"call with a stray due date", Activity{Type: ActivityCall, DueDate: &past}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.activity.IsOverdue(now))
		})
	}
}

func TestActivityDetails(t *testing.T) {
	due := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	call := Activity{Type: ActivityCall, Recording: "Call Recordings/a.mp3", Priority: PriorityHigh}
	callDetails, ok := call.Details().(CallDetails)
	require.True(t, ok)
	assert.Equal(t, "Call Recordings/a.mp3", callDetails.RecordingPath)
	assert.Nil(t, callDetails.Upload)

	task := Activity{Type: ActivityTask, DueDate: &due, Priority: PriorityLow, IsCompleted: true}
	taskDetails, ok := task.Details().(TaskDetails)
	require.True(t, ok)
	assert.Equal(t, &due, taskDetails.DueDate)
	assert.Equal(t, PriorityLow, taskDetails.Priority)
	assert.True(t, taskDetails.Completed)

	assert.IsType(t, NoteDetails{}, (&Activity{Type: ActivityNote}).Details())
	assert.IsType(t, PurchaseDetails{}, (&Activity{Type: ActivityPurchase}).Details())
	assert.Equal(t, ActivityTask, taskDetails.ActivityType())
}

func TestRecordingFilename(t *testing.T) {
	at := time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, "John_O_Brien__20240105_143000.mp3", RecordingFilename("John O'Brien", "voice.mp3", at))
	assert.Equal(t, "Unknown__20240105_143000.mp3", RecordingFilename("", "clip", at))
	assert.Equal(t, "Ravi__20240105_143000.WAV", RecordingFilename("Ravi", "call.final.WAV", at))
	assert.Equal(t, "Ravi__20240105_143000.mp3", RecordingFilename("Ravi", "noext.", at))
	assert.Equal(t, "Ravi__20240105_143000.m4a", RecordingFilename("Ravi", `C:\Users\ravi\rec.m4a`, at))
	assert.Equal(t, "Zoë_Ärk__20240105_143000.ogg", RecordingFilename("Zoë Ärk", "a.ogg", at))

	// The timestamp is always the UTC save time
	ist := at.In(clock.IST)
	assert.Equal(t, "Ravi__20240105_143000.mp3", RecordingFilename("Ravi", "a.mp3", ist))

	assert.Equal(t, "Call Recordings/Ravi__20240105_143000.mp3", RecordingPath("Ravi__20240105_143000.mp3"))
}

func TestValidEnums(t *testing.T) {
	assert.True(t, ActivityCall.Valid())
	assert.False(t, ActivityType("meeting").Valid())
	assert.True(t, Priority("").Valid())
	assert.False(t, Priority("urgent").Valid())
	assert.True(t, LeadSource("").Valid())
	assert.False(t, LeadSource("radio").Valid())
	assert.True(t, StageNotFit.Valid())
	assert.False(t, LeadStatus("").Valid())
	assert.Equal(t, "Sofa Cum Bed", CategorySofaCumBed.Display())
}
