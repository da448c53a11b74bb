// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ksteinfeldt/wipbot/internal/platform"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// Message is a message stored by the fake.
type Message struct {
	ID        string
	ChannelID string
	Text      string
	Pinned    bool
}

// Workspace is a category created through the fake.
type Workspace struct {
	ID         string
	Name       string
	Overwrites []platform.Overwrite
}

// Fake records every call and keeps enough state to answer lookups.
// Set Fail[op] to make an operation return ErrInjected; op names match
// the method names ("SendDirect", "EditMessage"...). FailFor[userID]
// makes SendDirect fail for one recipient.
type Fake struct {
	mu sync.Mutex

	Fail      map[string]bool
	FailFor   map[string]bool
	Roles     map[string]string
	MemberSet []platform.Member
	NoManage  bool

	Workspaces map[string]*Workspace
	Channels   map[string]string // channel → workspace
	ChanNames  map[string]string
	Messages   map[string]*Message
	Directs    map[string][]string // user → texts
	Calls      []string

	sent   []string
	nextID int
}

// New returns an empty Fake with an "Admin" role.
func New() *Fake {
	return &Fake{
		Fail:       make(map[string]bool),
		FailFor:    make(map[string]bool),
		Roles:      map[string]string{"Admin": "role-admin"},
		Workspaces: make(map[string]*Workspace),
		Channels:   make(map[string]string),
		ChanNames:  make(map[string]string),
		Messages:   make(map[string]*Message),
		Directs:    make(map[string][]string),
	}
}

var _ platform.Platform = (*Fake)(nil)

func (f *Fake) begin(op string) error {
	f.Calls = append(f.Calls, op)
	if f.Fail[op] {
		return platform.Wrap(op, ErrInjected)
	}
	return nil
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *Fake) CreateWorkspace(_ context.Context, name string, overwrites []platform.Overwrite) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateWorkspace"); err != nil {
		return "", err
	}
	id := f.id("cat")
	f.Workspaces[id] = &Workspace{ID: id, Name: name, Overwrites: overwrites}
	return id, nil
}

func (f *Fake) CreateChannel(_ context.Context, workspaceID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateChannel"); err != nil {
		return "", err
	}
	if _, ok := f.Workspaces[workspaceID]; !ok {
		return "", platform.Wrap("CreateChannel", fmt.Errorf("unknown workspace %s", workspaceID))
	}
	id := f.id("chan")
	f.Channels[id] = workspaceID
	f.ChanNames[id] = name
	return id, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteChannel"); err != nil {
		return err
	}
	delete(f.Channels, channelID)
	delete(f.ChanNames, channelID)
	return nil
}

func (f *Fake) DeleteWorkspace(_ context.Context, workspaceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteWorkspace"); err != nil {
		return err
	}
	delete(f.Workspaces, workspaceID)
	return nil
}

func (f *Fake) LookupRole(_ context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("LookupRole"); err != nil {
		return "", false, err
	}
	id, ok := f.Roles[name]
	return id, ok, nil
}

func (f *Fake) CategoryOfChannel(_ context.Context, channelID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CategoryOfChannel"); err != nil {
		return "", false, err
	}
	ws, ok := f.Channels[channelID]
	return ws, ok, nil
}

func (f *Fake) CanManageChannels(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CanManageChannels"); err != nil {
		return false, err
	}
	return !f.NoManage, nil
}

func (f *Fake) SendMessage(_ context.Context, channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SendMessage"); err != nil {
		return "", err
	}
	id := f.id("msg")
	f.Messages[id] = &Message{ID: id, ChannelID: channelID, Text: text}
	f.sent = append(f.sent, id)
	return id, nil
}

func (f *Fake) SendDirect(_ context.Context, userID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SendDirect"); err != nil {
		return "", err
	}
	if f.FailFor[userID] {
		return "", platform.Wrap("SendDirect", ErrInjected)
	}
	f.Directs[userID] = append(f.Directs[userID], text)
	return f.id("dm"), nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("EditMessage"); err != nil {
		return err
	}
	m, ok := f.Messages[messageID]
	if !ok || m.ChannelID != channelID {
		return platform.Wrap("EditMessage", fmt.Errorf("unknown message %s", messageID))
	}
	m.Text = text
	return nil
}

func (f *Fake) PinMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PinMessage"); err != nil {
		return err
	}
	m, ok := f.Messages[messageID]
	if !ok || m.ChannelID != channelID {
		return platform.Wrap("PinMessage", fmt.Errorf("unknown message %s", messageID))
	}
	m.Pinned = true
	return nil
}

func (f *Fake) FetchMessage(_ context.Context, channelID, messageID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchMessage"); err != nil {
		return "", err
	}
	m, ok := f.Messages[messageID]
	if !ok || m.ChannelID != channelID {
		return "", platform.Wrap("FetchMessage", fmt.Errorf("unknown message %s", messageID))
	}
	return m.Text, nil
}

func (f *Fake) Members(context.Context) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Members"); err != nil {
		return nil, err
	}
	return append([]platform.Member(nil), f.MemberSet...), nil
}

// MessagesIn returns the texts sent to channelID, oldest first.
func (f *Fake) MessagesIn(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, id := range f.sent {
		if m := f.Messages[id]; m != nil && m.ChannelID == channelID {
			out = append(out, m.Text)
		}
	}
	return out
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

// DirectsTo returns the direct messages sent to userID.
func (f *Fake) DirectsTo(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Directs[userID]...)
}

// Message returns a copy of the stored message.
func (f *Fake) Message(id string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Messages[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// ChannelsIn returns the channel IDs in workspaceID, sorted.
func (f *Fake) ChannelsIn(workspaceID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for c, ws := range f.Channels {
		if ws == workspaceID {
			ids = append(ids, c)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetFail toggles an injected failure for op.
func (f *Fake) SetFail(op string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[op] = fail
}
