package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	cases := map[string]Action{
		"PUSH":         ActionPush,
		" merge ":      ActionMerge,
		"pull_request": ActionPullRequest,
	}
	for in, want := range cases {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseAction("DEPLOY")
	assert.Error(t, err)
	assert.False(t, Action("").Valid())
}

func TestEventJSONShape(t *testing.T) {
	ev := Event{
		ID:        "7f1c",
		RequestID: "abcdef1",
		Author:    "alice",
		Action:    ActionPush,
		ToBranch:  "main",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "abcdef1", m["request_id"])
	assert.Equal(t, "PUSH", m["action"])
	assert.Equal(t, "2024-01-01T00:00:00Z", m["timestamp"])
	v, ok := m["from_branch"]
	assert.True(t, ok, "from_branch is always present")
	assert.Nil(t, v)
	assert.Equal(t, "", ev.FromBranchValue())
}

func TestToCloudEvent(t *testing.T) {
	ev := Event{
		ID:         "7f1c",
		RequestID:  "42",
		Author:     "bob",
		Action:     ActionMerge,
		FromBranch: StringPtr("feature"),
		ToBranch:   "main",
		Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	ce, err := ev.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "42", ce.ID())
	assert.Equal(t, "github", ce.Source())
	assert.Equal(t, "com.github.merge", ce.Type())
	assert.Equal(t, "main", ce.Subject())
	assert.True(t, ce.Time().Equal(ev.Timestamp))
	assert.Equal(t, "bob", ce.Extensions()["author"])
	assert.Equal(t, "feature", ce.Extensions()["frombranch"])

	var decoded Event
	require.NoError(t, ce.DataAs(&decoded))
	assert.Equal(t, ev.RequestID, decoded.RequestID)
	assert.Equal(t, "feature", decoded.FromBranchValue())
}

func TestToCloudEventPushOmitsFromBranch(t *testing.T) {
	ev := Event{
		RequestID: "abcdef1",
		Author:    "alice",
		Action:    ActionPush,
		ToBranch:  "main",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	ce, err := ev.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "com.github.push", ce.Type())
	_, ok := ce.Extensions()["frombranch"]
	assert.False(t, ok)
}

func TestToCloudEventRequiresRequestID(t *testing.T) {
	ev := Event{Action: ActionPush, Timestamp: time.Now()}
	_, err := ev.ToCloudEvent()
	assert.Error(t, err)
}
