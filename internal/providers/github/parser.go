package github

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hookwatch/internal/model"
	"hookwatch/internal/payload"
	"hookwatch/internal/providers/shared"
)

var (
	ErrUnsupportedEvent = errors.New("unsupported github event")
	ErrIgnoredAction    = errors.New("ignored pull request action")
	ErrNoCommits        = errors.New("push event without commits")
	ErrMalformedPayload = errors.New("malformed github payload")
)

const shortSHALength = 7

type Kind int

const (
	KindUnsupported Kind = iota
	KindPush
	KindPullRequest
)

func ParseKind(eventType string) Kind {
	switch shared.NormalizeEventType(eventType) {
	case "push":
		return KindPush
	case "pull_request":
		return KindPullRequest
	default:
		return KindUnsupported
	}
}

func (k Kind) String() string {
	switch k {
	case KindPush:
		return "push"
	case KindPullRequest:
		return "pull_request"
	default:
		return "unsupported"
	}
}

var recordedPRActions = map[string]bool{
	"opened":      true,
	"closed":      true,
	"synchronize": true,
}

type Parser struct {
	Now func() time.Time
}

// Normalize maps a decoded delivery onto an Event. Any error means there is
// nothing to record for this delivery.
func (p Parser) Normalize(kind Kind, doc payload.Document) (ev *model.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = nil
			err = fmt.Errorf("%w: %v", ErrMalformedPayload, r)
		}
	}()

	switch kind {
	case KindPush:
		return p.push(doc)
	case KindPullRequest:
		return p.pullRequest(doc)
	default:
		return nil, ErrUnsupportedEvent
	}
}

func (p Parser) push(doc payload.Document) (*model.Event, error) {
	commit, ok, err := doc.First("commits")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !ok {
		return nil, ErrNoCommits
	}

	r := fieldReader{}
	ref := r.str(doc, "ref")
	pusher := r.str(doc, "pusher", "name")
	commitAuthor := r.str(commit, "author", "name")
	sha := r.str(commit, "id")
	timestamp := r.str(commit, "timestamp")
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, r.err)
	}
	if strings.TrimSpace(sha) == "" {
		return nil, fmt.Errorf("%w: commit id is missing", ErrMalformedPayload)
	}

	return &model.Event{
		RequestID:  shared.Truncate(strings.TrimSpace(sha), shortSHALength),
		Author:     shared.NonEmpty(pusher, commitAuthor),
		Action:     model.ActionPush,
		FromBranch: nil,
		ToBranch:   strings.TrimPrefix(ref, "refs/heads/"),
		Timestamp:  shared.ParseTimeOr(timestamp, p.now),
	}, nil
}

func (p Parser) pullRequest(doc payload.Document) (*model.Event, error) {
	r := fieldReader{}
	action := r.str(doc, "action")
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, r.err)
	}
	if !recordedPRActions[action] {
		return nil, fmt.Errorf("%w: %q", ErrIgnoredAction, action)
	}

	pr, err := doc.Map("pull_request")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	number, hasNumber := r.int(pr, "number")
	fromBranch := r.str(pr, "head", "ref")
	toBranch := r.str(pr, "base", "ref")
	author := r.str(pr, "user", "login")
	merged := r.boolean(pr, "merged")
	mergedAt := r.str(pr, "merged_at")
	createdAt := r.str(pr, "created_at")
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, r.err)
	}
	if !hasNumber {
		return nil, fmt.Errorf("%w: pull request number is missing", ErrMalformedPayload)
	}

	ev := &model.Event{
		RequestID:  strconv.FormatInt(number, 10),
		Author:     author,
		Action:     model.ActionPullRequest,
		FromBranch: model.StringPtr(fromBranch),
		ToBranch:   toBranch,
		Timestamp:  shared.ParseTimeOr(createdAt, p.now),
	}
	if merged && strings.TrimSpace(mergedAt) != "" {
		ev.Action = model.ActionMerge
		ev.Timestamp = shared.ParseTimeOr(mergedAt, p.now)
	}
	return ev, nil
}

func (p Parser) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// fieldReader keeps the first accessor error so extraction reads linearly.
type fieldReader struct {
	err error
}

func (r *fieldReader) str(doc payload.Document, fields ...string) string {
	if r.err != nil {
		return ""
	}
	v, err := doc.String(fields...)
	r.err = err
	return v
}

func (r *fieldReader) boolean(doc payload.Document, fields ...string) bool {
	if r.err != nil {
		return false
	}
	v, err := doc.Bool(fields...)
	r.err = err
	return v
}

func (r *fieldReader) int(doc payload.Document, fields ...string) (int64, bool) {
	if r.err != nil {
		return 0, false
	}
	v, found, err := doc.Int64(fields...)
	r.err = err
	return v, found
}
