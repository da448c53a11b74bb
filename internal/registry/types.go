// Package registry holds the in-memory record of member workspaces, their
// projects and the tracker message for each project channel.
package registry

import (
	"time"
)

// CurrentSnapshotVersion is the schema version written by Snapshot.
const CurrentSnapshotVersion = 1

// Project is one tracked writing project. Its identity is the channel the
// project lives in.
type Project struct {
	// ChannelID is the platform-assigned project channel.
	ChannelID string

	// Title is the project title as given by the member.
	Title string

	// LastUpdate is when the member last posted a tracker update.
	LastUpdate time.Time

	// Current is the last reported word count.
	Current int

	// Goal is the target word count.
	Goal int

	// TrackerMessageID is the pinned tracker message in ChannelID.
	TrackerMessageID string

	// Stage is the free-text stage (drafting, editing...).
	Stage string
}

// Metadata is the reverse index entry for a project channel.
type Metadata struct {
	Owner string
	Title string
	Genre string
	Goal  int
}

// NewProject is the input to AddProject.
type NewProject struct {
	Title            string
	Genre            string
	Current          int
	Goal             int
	Stage            string
	ChannelID        string
	TrackerMessageID string
}

// Update carries the optional fields parsed from a tracker update. Nil
// fields are left unchanged.
type Update struct {
	Words *int
	Stage *string
}

// Tracked is a project merged with its metadata, as needed to re-render
// its tracker.
type Tracked struct {
	Owner   string
	Project Project
	Meta    Metadata
}
