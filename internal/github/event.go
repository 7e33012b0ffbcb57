// Package github provides the GitHub Actions trigger context and a REST client for issue comments
package github

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EventKind classifies the workflow event that started the run
type EventKind int

const (
	// EventOther is any event that cannot receive a report
	EventOther EventKind = iota
	// EventPullRequest is the pull_request event
	EventPullRequest
	// EventIssueComment is the issue_comment event
	EventIssueComment
)

// ParseEventKind maps a GITHUB_EVENT_NAME value to an EventKind
func ParseEventKind(name string) EventKind {
	switch strings.TrimSpace(name) {
	case "pull_request":
		return EventPullRequest
	case "issue_comment":
		return EventIssueComment
	default:
		return EventOther
	}
}

// String returns the event name
func (k EventKind) String() string {
	switch k {
	case EventPullRequest:
		return "pull_request"
	case EventIssueComment:
		return "issue_comment"
	default:
		return "other"
	}
}

// Trigger is the read-only context of the triggering workflow event
type Trigger struct {
	Name   string
	Kind   EventKind
	Number int
	Owner  string
	Repo   string
}

// eventPayload holds the parts of the webhook payload used to find the thread number
type eventPayload struct {
	PullRequest *struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Issue *struct {
		Number int `json:"number"`
	} `json:"issue"`
}

// Reportable reports whether a comment can be posted for this event
func (t Trigger) Reportable() bool {
	return t.Kind == EventPullRequest || t.Kind == EventIssueComment
}

// LoadTrigger builds the trigger from the event name, the event payload file and the
// owner/name repository slug. A missing payload file leaves Number at zero.
func LoadTrigger(eventName, eventPath, repository string) (Trigger, error) {
	t := Trigger{
		Name: eventName,
		Kind: ParseEventKind(eventName),
	}

	if repository != "" {
		owner, repo, ok := strings.Cut(repository, "/")
		if !ok || owner == "" || repo == "" {
			return t, fmt.Errorf("invalid repository %q, expected owner/name", repository)
		}
		t.Owner, t.Repo = owner, repo
	}

	if eventPath == "" || !t.Reportable() {
		return t, nil
	}

	// #nosec G304 -- path is provided by the Actions runner
	data, err := os.ReadFile(eventPath)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("failed to read event payload: %w", err)
	}

	number, err := threadNumber(t.Kind, data)
	if err != nil {
		return t, err
	}
	t.Number = number
	return t, nil
}

// threadNumber resolves the pull request or issue number from a payload
func threadNumber(kind EventKind, data []byte) (int, error) {
	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse event payload: %w", err)
	}

	switch kind {
	case EventPullRequest:
		if payload.PullRequest != nil {
			return payload.PullRequest.Number, nil
		}
	case EventIssueComment:
		if payload.Issue != nil {
			return payload.Issue.Number, nil
		}
	case EventOther:
	}
	return 0, nil
}
