package api

import (
	"time"

	"hookwatch/internal/app"

	"github.com/go-logr/logr"
)

type ServerOptions struct {
	RateLimit RateLimitPolicy
	// StorageMode names the backing store in health output, e.g. "sql:postgres".
	StorageMode  string
	PollInterval time.Duration
	// Providers names the registered webhook senders for the info endpoint.
	Providers []string
	Logger    logr.Logger
}

type Server struct {
	service      *app.Service
	limiter      *clientRateLimiter
	storageMode  string
	pollInterval time.Duration
	providers    []string
	logger       logr.Logger
	now          func() time.Time
}

func NewServer(svc *app.Service, opts ServerOptions) *Server {
	mode := opts.StorageMode
	if mode == "" {
		mode = "memory"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 15 * time.Second
	}
	return &Server{
		service:      svc,
		limiter:      newClientRateLimiter(opts.RateLimit),
		storageMode:  mode,
		pollInterval: poll,
		providers:    append([]string(nil), opts.Providers...),
		logger:       opts.Logger,
		now:          time.Now,
	}
}
