package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	OperationStarted Type = iota + 1
	OperationComplete
	DirCreated
	FileCopied
	FileMoved
	FileDeleted
	DirRemoved
	LinkCreated
	MountPointSkipped
	EntryFailed
	Retrying
	AttributesCleared
	VerifyFailed
)

var typeNames = [...]string{
	OperationStarted:  "OperationStarted",
	OperationComplete: "OperationComplete",
	DirCreated:        "DirCreated",
	FileCopied:        "FileCopied",
	FileMoved:         "FileMoved",
	FileDeleted:       "FileDeleted",
	DirRemoved:        "DirRemoved",
	LinkCreated:       "LinkCreated",
	MountPointSkipped: "MountPointSkipped",
	EntryFailed:       "EntryFailed",
	Retrying:          "Retrying",
	AttributesCleared: "AttributesCleared",
	VerifyFailed:      "VerifyFailed",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from an engine run.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // canonical path the event concerns
	Target    string // destination or link target, when there is one
	Size      int64
	Attempt   int // Retrying only
	Error     error
}
