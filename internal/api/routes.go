package api

import "net/http"

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	ui := newUIAssets()
	mux.HandleFunc("/", ui.serveRoot)
	mux.HandleFunc("/ui", ui.serveUI)
	mux.HandleFunc("/ui/", ui.serveUI)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/api/config", s.handleClientConfig)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/", s.handleEventByID)
	return mux
}
