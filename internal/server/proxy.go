// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veranda-dev/veranda/internal/observability"
)

// hopByHopHeaders must not be forwarded between hops.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handleProxy forwards an API call to the plugin's configured backend. The
// portal is the sole holder of the backend location and credentials; plugin
// code only ever addresses this endpoint.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	md, ok := s.findPlugin(r.Context(), id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown plugin " + id})
		return
	}
	if md.BackendURL == "" {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "plugin " + id + " has no backend"})
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path query parameter is required"})
		return
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := strings.TrimRight(md.BackendURL, "/") + path
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "building upstream request failed"})
		return
	}

	copyHeaders(req.Header, r.Header)
	stripHopByHop(req.Header)
	// Credentials stay server-side.
	req.Header.Del("Cookie")
	if s.cfg.ProxyAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.ProxyAuthToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		observability.RecordProxyFailure(id)
		s.logger.Warn("plugin backend unreachable",
			"plugin", id,
			"error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "plugin backend unreachable"})
		return
	}
	defer resp.Body.Close()
	if s.metrics != nil {
		s.metrics.ProxyRequestsTotal.WithLabelValues(id, strconv.Itoa(resp.StatusCode)).Inc()
	}

	copyHeaders(w.Header(), resp.Header)
	stripHopByHop(w.Header())
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("streaming proxy response failed",
			"plugin", id,
			"error", err)
	}
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
