package github

import (
	"time"

	"hookwatch/internal/model"
	"hookwatch/internal/payload"
)

// Provider is the registry key for GitHub deliveries.
const Provider = "github"

type Adapter struct {
	Parser Parser
	Secret string
}

func NewAdapter(secret string) Adapter {
	return Adapter{
		Parser: Parser{Now: time.Now},
		Secret: secret,
	}
}

func (a Adapter) Provider() string { return Provider }

func (a Adapter) SignatureConfigured() bool { return a.Secret != "" }

func (a Adapter) Authorize(body []byte, signature string) bool {
	return VerifySignature(body, signature, a.Secret)
}

func (a Adapter) Normalize(eventType string, doc payload.Document) (*model.Event, error) {
	return a.Parser.Normalize(ParseKind(eventType), doc)
}
