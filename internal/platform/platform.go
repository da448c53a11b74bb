// Package platform defines the chat-platform capabilities the bot
// consumes. The discord package provides the production implementation;
// platformtest provides an in-memory fake.
package platform

import (
	"context"
	"errors"
)

// ErrForbidden indicates the bot lacks a permission the call needs.
var ErrForbidden = errors.New("missing permission")

// CallError wraps a failed platform call with the operation name.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *CallError) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise a *CallError for op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Op: op, Err: err}
}

// Permission is a bit set of channel permissions.
type Permission uint64

const (
	PermViewChannel Permission = 1 << iota
	PermSendMessages
	PermManageChannels
	PermManageMessages
)

// Has reports whether p includes every bit of q.
func (p Permission) Has(q Permission) bool { return p&q == q }

// TargetKind says what an Overwrite applies to.
type TargetKind int

const (
	// TargetEveryone is the community-wide default role. ID is ignored.
	TargetEveryone TargetKind = iota
	TargetRole
	TargetMember
)

// Overwrite grants or denies permissions on a workspace for one target.
type Overwrite struct {
	Kind  TargetKind
	ID    string
	Allow Permission
	Deny  Permission
}

// Member is a community member as seen by the scheduled jobs.
type Member struct {
	ID   string
	Name string
	Bot  bool
}

// Messenger sends and maintains messages.
type Messenger interface {
	// SendMessage posts text to a channel and returns the message ID.
	SendMessage(ctx context.Context, channelID, text string) (string, error)

	// SendDirect posts text to a user's direct-message channel.
	SendDirect(ctx context.Context, userID, text string) (string, error)

	EditMessage(ctx context.Context, channelID, messageID, text string) error
	PinMessage(ctx context.Context, channelID, messageID string) error

	// FetchMessage returns the current text of a message.
	FetchMessage(ctx context.Context, channelID, messageID string) (string, error)
}

// Provisioner creates and removes workspaces and channels.
type Provisioner interface {
	CreateWorkspace(ctx context.Context, name string, overwrites []Overwrite) (string, error)
	CreateChannel(ctx context.Context, workspaceID, name string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error

	// LookupRole resolves a role name to its ID.
	LookupRole(ctx context.Context, name string) (string, bool, error)

	// CategoryOfChannel returns the workspace a channel currently lives in.
	CategoryOfChannel(ctx context.Context, channelID string) (string, bool, error)

	// CanManageChannels reports whether the bot may create categories
	// and channels.
	CanManageChannels(ctx context.Context) (bool, error)
}

// Directory lists community members.
type Directory interface {
	Members(ctx context.Context) ([]Member, error)
}

// Platform is the full capability set.
type Platform interface {
	Messenger
	Provisioner
	Directory
}

// MemberEvent is delivered when a member joins or leaves.
type MemberEvent struct {
	UserID string
	Name   string
	Bot    bool
}

// MessageEvent is delivered for every message the bot can see.
type MessageEvent struct {
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorName  string
	AuthorRoles []string
	AuthorBot   bool

	// Direct is set for direct messages to the bot.
	Direct bool

	Text string
}

// Handler receives platform events. Implementations must not block the
// caller for long; slow work belongs in its own goroutine.
type Handler interface {
	MemberJoined(ctx context.Context, ev MemberEvent)
	MemberLeft(ctx context.Context, ev MemberEvent)
	MessageReceived(ctx context.Context, ev MessageEvent)
}
