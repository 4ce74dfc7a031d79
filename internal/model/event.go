package model

import (
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
)

type Action string

const (
	ActionPush        Action = "PUSH"
	ActionPullRequest Action = "PULL_REQUEST"
	ActionMerge       Action = "MERGE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPush, ActionPullRequest, ActionMerge:
		return true
	}
	return false
}

func ParseAction(in string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(in)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", in)
	}
	return a, nil
}

// Event is the normalized record derived from a single webhook delivery.
// ID is assigned by the store; RequestID is the natural deduplication key.
type Event struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Author     string    `json:"author"`
	Action     Action    `json:"action"`
	FromBranch *string   `json:"from_branch"`
	ToBranch   string    `json:"to_branch"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e Event) FromBranchValue() string {
	if e.FromBranch == nil {
		return ""
	}
	return *e.FromBranch
}

func StringPtr(s string) *string {
	return &s
}

func (e *Event) ToCloudEvent() (event.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(e.RequestID)
	ce.SetSource("github")
	ce.SetType("com.github." + strings.ToLower(string(e.Action)))
	ce.SetTime(e.Timestamp)
	ce.SetSubject(e.ToBranch)

	ce.SetExtension("author", e.Author)
	if e.FromBranch != nil {
		ce.SetExtension("frombranch", *e.FromBranch)
	}

	if err := ce.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return ce, err
	}
	if err := ce.Validate(); err != nil {
		return ce, err
	}
	return ce, nil
}
