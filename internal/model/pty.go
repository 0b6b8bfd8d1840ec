package model

import "time"

// PTYCommand selects the executable variant a PTYSession runs.
type PTYCommand string

const (
	CommandShell PTYCommand = "shell"
	CommandClaude PTYCommand = "claude"
	CommandCodex  PTYCommand = "codex"
)

// PTYSessionInfo is the externally-visible description of a PTYSession
// (data model §3). The session itself, including its child process and
// scrollback buffer, lives in internal/pty and is not exported as a value
// type to avoid copying a mutex.
type PTYSessionInfo struct {
	SessionID   string     `json:"sessionId"`
	Worktree    string     `json:"worktree"`
	Command     PTYCommand `json:"command"`
	Cols        int        `json:"cols"`
	Rows        int        `json:"rows"`
	Subscribers int        `json:"subscribers"`
	LastActive  time.Time  `json:"lastActive"`
}
