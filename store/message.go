package store

import (
	"slices"
	"time"
)

// Folders partition a message's lifecycle state. Every stored message is in
// exactly one folder.
const (
	FolderInbox  = "__inbox"
	FolderOutbox = "__outbox"
	FolderQueued = "__queued"
	FolderSent   = "__sent"
	FolderFailed = "__failed"
)

// Folders lists every known folder in display order.
var Folders = []string{FolderInbox, FolderOutbox, FolderQueued, FolderSent, FolderFailed}

// IsValidFolder reports whether folder is one of the known folders.
func IsValidFolder(folder string) bool {
	return slices.Contains(Folders, folder)
}

// transitions maps a destination folder to the folders a message may be
// moved out of to reach it.
var transitions = map[string][]string{
	FolderSent:   {FolderOutbox},
	FolderFailed: {FolderOutbox},
	FolderQueued: {FolderOutbox, FolderFailed},
	FolderOutbox: {FolderQueued},
}

// AllowedSources returns the folders from which a message may be moved into
// the destination folder. An empty result means no move into it is allowed
// (Inbox records are only ever created by insert).
func AllowedSources(to string) []string {
	return slices.Clone(transitions[to])
}

// CanTransition reports whether a message may move from one folder to another.
func CanTransition(from, to string) bool {
	return slices.Contains(transitions[to], from)
}

// IsRecyclable reports whether messages in the folder count towards and may
// be removed by per-thread retention. Pending sends are never recycled.
func IsRecyclable(folder string) bool {
	return folder != FolderQueued && folder != FolderOutbox
}

// RecyclableFolders returns the folders subject to retention.
func RecyclableFolders() []string {
	var out []string
	for _, f := range Folders {
		if IsRecyclable(f) {
			out = append(out, f)
		}
	}
	return out
}

// Message is a read-only view of a stored short message.
// Modifications go through Store.Update or Store.MoveToFolder.
type Message interface {
	GetID() string
	GetThreadID() string
	GetAddress() string
	GetBody() string
	GetProtocol() int
	// GetDate is the local receipt (or enqueue) time, not the sender's clock.
	GetDate() time.Time
	GetFolder() string
	GetIsRead() bool
	GetReplyPathPresent() bool
	GetServiceCenter() string
	GetSubject() string
	GetErrorCode() int
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// MessageData contains data for inserting a new message.
type MessageData struct {
	ThreadID         string
	Address          string
	Body             string
	Protocol         int
	Date             time.Time
	Folder           string
	IsRead           bool
	ReplyPathPresent bool
	ServiceCenter    string
	Subject          string
	ErrorCode        int
}

// Validate checks the fields every backend requires.
func (d MessageData) Validate() error {
	if d.Address == "" {
		return ErrEmptyAddress
	}
	if !IsValidFolder(d.Folder) {
		return ErrInvalidFolder
	}
	return nil
}

// MessageUpdate carries the fields to change on matching messages.
// Nil fields are left untouched.
type MessageUpdate struct {
	Address          *string
	Body             *string
	Protocol         *int
	Date             *time.Time
	Folder           *string
	IsRead           *bool
	ReplyPathPresent *bool
	ServiceCenter    *string
	Subject          *string
	ErrorCode        *int
}

// IsEmpty reports whether the update changes nothing.
func (u MessageUpdate) IsEmpty() bool {
	return u.Address == nil && u.Body == nil && u.Protocol == nil && u.Date == nil &&
		u.Folder == nil && u.IsRead == nil && u.ReplyPathPresent == nil &&
		u.ServiceCenter == nil && u.Subject == nil && u.ErrorCode == nil
}

// Validate rejects empty updates and unknown folders.
func (u MessageUpdate) Validate() error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.Folder != nil && !IsValidFolder(*u.Folder) {
		return ErrInvalidFolder
	}
	if u.Address != nil && *u.Address == "" {
		return ErrEmptyAddress
	}
	return nil
}

// MessageList represents a page of messages.
type MessageList struct {
	Messages []Message
	Total    int64
	HasMore  bool
}

// IDs returns the IDs of the messages in the list.
func (l *MessageList) IDs() []string {
	ids := make([]string, len(l.Messages))
	for i, m := range l.Messages {
		ids[i] = m.GetID()
	}
	return ids
}
