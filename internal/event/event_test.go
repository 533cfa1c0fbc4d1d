package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "OperationStarted", typ: OperationStarted},
		{want: "OperationComplete", typ: OperationComplete},
		{want: "DirCreated", typ: DirCreated},
		{want: "FileCopied", typ: FileCopied},
		{want: "FileMoved", typ: FileMoved},
		{want: "FileDeleted", typ: FileDeleted},
		{want: "DirRemoved", typ: DirRemoved},
		{want: "LinkCreated", typ: LinkCreated},
		{want: "MountPointSkipped", typ: MountPointSkipped},
		{want: "EntryFailed", typ: EntryFailed},
		{want: "Retrying", typ: Retrying},
		{want: "AttributesCleared", typ: AttributesCleared},
		{want: "VerifyFailed", typ: VerifyFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Empty(t, e.Path)
	assert.Empty(t, e.Target)
	assert.Zero(t, e.Size)
	assert.Zero(t, e.Attempt)
	require.NoError(t, e.Error)
}

func TestEventFields(t *testing.T) {
	now := time.Now()
	boom := errors.New("sharing violation")
	e := Event{
		Type:      Retrying,
		Timestamp: now,
		Path:      `C:\src\file.txt`,
		Target:    `D:\dst\file.txt`,
		Attempt:   2,
		Error:     boom,
	}
	assert.Equal(t, Retrying, e.Type)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, `C:\src\file.txt`, e.Path)
	assert.Equal(t, `D:\dst\file.txt`, e.Target)
	assert.Equal(t, 2, e.Attempt)
	assert.ErrorIs(t, e.Error, boom)
}
