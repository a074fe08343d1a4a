// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package handler orchestrates Normalizer -> Fingerprinter -> route-config
// lookup -> cassette lookup -> (forward+record | serve | miss) per the
// current mode (spec.md §4.7). Upstream calls go through the same
// composable http.RoundTripper chain the teacher's provider clients build
// for themselves (internal/logging.Transport, wrapping
// roundtrippers.RequestID), rather than a bespoke transport.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nurikk/vcrproxy/internal/cassette"
	"github.com/nurikk/vcrproxy/internal/config"
	"github.com/nurikk/vcrproxy/internal/coordinator"
	"github.com/nurikk/vcrproxy/internal/fingerprint"
	"github.com/nurikk/vcrproxy/internal/logging"
	"github.com/nurikk/vcrproxy/internal/mode"
	"github.com/nurikk/vcrproxy/internal/normalize"
	"github.com/nurikk/vcrproxy/internal/routeconfig"
	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// hopByHop headers are never forwarded upstream nor copied back to the
// inbound client, spec.md §4.7.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

const defaultMaxBodySize = 10 << 20 // 10 MiB; generous enough for JSON/form bodies without unbounded memory use

// Handler is the proxy's reverse-proxy request path.
type Handler struct {
	targets      *targetTable
	routes       *routeconfig.Store
	store        *cassette.Store
	mode         *mode.Engine
	coord        *coordinator.Group
	client       *http.Client
	ignoreHdrs   []string
	overwrite    bool
	maxBodySize  int
	proxyTimeout time.Duration
	logger       *slog.Logger
}

// New builds a Handler from the loaded configuration. engine is shared with
// internal/admin so both surfaces observe and mutate the same mode/counters.
func New(cfg config.Config, engine *mode.Engine, logger *slog.Logger) (*Handler, error) {
	targets, err := newTargetTable(cfg.Targets)
	if err != nil {
		return nil, vcrerr.Wrap(vcrerr.ConfigInvalid, "handler.New", err)
	}
	transport := logging.Transport(http.DefaultTransport, logger)
	return &Handler{
		targets:      targets,
		routes:       routeconfig.NewStore(cfg.Cassettes.Dir),
		store:        cassette.NewStore(cfg.Cassettes.Dir),
		mode:         engine,
		coord:        &coordinator.Group{},
		client:       &http.Client{Transport: transport},
		ignoreHdrs:   cfg.Matching.AlwaysIgnoreHeaders,
		overwrite:    cfg.Cassettes.Overwrite,
		maxBodySize:  defaultMaxBodySize,
		proxyTimeout: time.Duration(cfg.ProxyTimeout),
		logger:       logger,
	}, nil
}

// ServeHTTP implements the reverse-proxy listener, spec.md §6.1.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, rest, ok := h.targets.Resolve(r.URL.Path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no_upstream", fmt.Sprintf("no target configured for path %q", r.URL.Path))
		return
	}

	body, err := readLimited(r.Body, h.maxBodySize)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, string(vcrerr.BodyTooLarge), "request body exceeds limit")
		return
	}

	currentMode := h.mode.Get()
	writeDefault := currentMode != mode.Replay
	routeCfg, err := h.routes.Get(target.Domain, r.Method, r.URL.Path, writeDefault)
	if err != nil {
		h.mode.IncError()
		h.logger.Error("routeconfig lookup failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "store_io", err.Error())
		return
	}
	policy := routeCfg.ToPolicy(h.ignoreHdrs)

	raw := normalize.Raw{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		Header:      r.Header,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
	}
	canon, err := normalize.Normalize(raw, policy, h.maxBodySize)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, string(kindOf(err)), err.Error())
		return
	}
	fp := fingerprint.Compute(canon)
	if canon.BodyKind == normalize.KindBinary && len(body) > 0 {
		if mt, _, err := mime.ParseMediaType(raw.ContentType); err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json")) {
			h.logger.Debug("JSON body did not parse; matching on raw bytes", "path", r.URL.Path, "fingerprint", fp)
		}
	}

	switch currentMode {
	case mode.Replay:
		h.serveReplay(w, target, fp)
	case mode.Record:
		h.serveRecord(w, r, target, rest, body, fp)
	case mode.Spy:
		found, err := h.store.Lookup(target.Domain, fp)
		if err != nil {
			h.mode.IncError()
			h.logger.Error("cassette lookup failed", "err", err)
			writeJSONError(w, http.StatusInternalServerError, "store_io", err.Error())
			return
		}
		if found != nil {
			h.mode.IncHit()
			h.writeCassetteResponse(w, found)
			return
		}
		h.mode.IncMiss()
		h.serveRecord(w, r, target, rest, body, fp)
	}
}

func (h *Handler) serveReplay(w http.ResponseWriter, target Target, fp string) {
	found, err := h.store.Lookup(target.Domain, fp)
	if err != nil {
		h.mode.IncError()
		h.logger.Error("cassette lookup failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "store_io", err.Error())
		return
	}
	if found == nil {
		h.mode.IncMiss()
		writeJSONError(w, http.StatusNotFound, "cassette_miss", fp)
		return
	}
	h.mode.IncHit()
	h.writeCassetteResponse(w, found)
}

func (h *Handler) serveRecord(w http.ResponseWriter, r *http.Request, target Target, rest string, body []byte, fp string) {
	type result struct {
		status  int
		headers http.Header
		body    []byte
	}

	key := target.Domain + "|" + fp
	v, _, err := h.coord.Do(key, func() (any, error) {
		resp, err := h.forward(r, target, rest, body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := readLimited(resp.Body, h.maxBodySize)
		if err != nil {
			return nil, vcrerr.Wrap(vcrerr.BodyTooLarge, "handler.serveRecord", err)
		}

		c := buildCassette(target, r, fp, body, resp, respBody)
		if _, err := h.store.Save(target.Domain, c, h.overwrite); err != nil {
			return nil, err
		}
		h.mode.IncRecorded()
		return result{status: resp.StatusCode, headers: resp.Header, body: respBody}, nil
	})

	if err != nil {
		h.mode.IncError()
		kind, _ := vcrerr.KindOf(err)
		switch kind {
		case vcrerr.UpstreamTimeout:
			writeJSONError(w, http.StatusGatewayTimeout, "upstream_timeout", err.Error())
		case vcrerr.StoreIO:
			h.logger.Error("cassette save failed", "err", err)
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
		default:
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
		}
		return
	}

	res := v.(result)
	for name, values := range res.headers {
		if hopByHop[strings.ToLower(name)] {
			continue
		}
		for _, val := range values {
			w.Header().Add(name, val)
		}
	}
	w.WriteHeader(res.status)
	_, _ = w.Write(res.body)
}

func (h *Handler) forward(r *http.Request, target Target, rest string, body []byte) (*http.Response, error) {
	upstreamURL := *target.URL
	upstreamURL.Path = joinPath(target.URL.Path, rest)
	upstreamURL.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), h.proxyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, vcrerr.Wrap(vcrerr.UpstreamUnavailable, "handler.forward", err)
	}
	for name, values := range r.Header {
		if hopByHop[strings.ToLower(name)] {
			continue
		}
		req.Header[name] = values
	}
	req.Host = target.URL.Host

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, vcrerr.Wrap(vcrerr.UpstreamTimeout, "handler.forward", err)
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, vcrerr.Wrap(vcrerr.UpstreamTimeout, "handler.forward", err)
		}
		return nil, vcrerr.Wrap(vcrerr.UpstreamUnavailable, "handler.forward", err)
	}
	return resp, nil
}

func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return base + rest
}

func buildCassette(target Target, r *http.Request, fp string, reqBody []byte, resp *http.Response, respBody []byte) *cassette.Cassette {
	reqText, reqEnc := cassette.EncodeBody(reqBody)
	respText, respEnc := cassette.EncodeBody(respBody)

	query := map[string][]string{}
	for k, v := range r.URL.Query() {
		query[k] = v
	}

	return &cassette.Cassette{
		Meta: cassette.Meta{
			RecordedAt: time.Now().UTC(),
			Target:     target.URL.String(),
			Domain:     target.Domain,
			Version:    fingerprint.FormatVersion,
		},
		Fingerprint: fp,
		Request: cassette.Request{
			Method:       r.Method,
			Path:         r.URL.Path,
			Query:        query,
			Headers:      filterHeaders(r.Header),
			Body:         reqText,
			BodyEncoding: reqEnc,
			ContentType:  r.Header.Get("Content-Type"),
		},
		Response: cassette.Response{
			Status:       resp.StatusCode,
			Headers:      filterHeaders(resp.Header),
			Body:         respText,
			BodyEncoding: respEnc,
		},
	}
}

func filterHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		if hopByHop[strings.ToLower(name)] {
			continue
		}
		out[name] = values
	}
	return out
}

func (h *Handler) writeCassetteResponse(w http.ResponseWriter, c *cassette.Cassette) {
	body, err := cassette.DecodeBody(c.Response.Body, c.Response.BodyEncoding)
	if err != nil {
		h.mode.IncError()
		h.logger.Error("cassette body decode failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "store_io", err.Error())
		return
	}
	for name, values := range c.Response.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(c.Response.Status)
	_, _ = w.Write(body)
}

func writeJSONError(w http.ResponseWriter, status int, errKind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]string{"error": errKind}
	if errKind == "cassette_miss" {
		payload["fingerprint"] = detail
	} else if detail != "" {
		payload["detail"] = detail
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func kindOf(err error) vcrerr.Kind {
	if k, ok := vcrerr.KindOf(err); ok {
		return k
	}
	return vcrerr.InvalidRequest
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	lr := io.LimitReader(r, int64(limit)+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, vcrerr.New(vcrerr.BodyTooLarge, "handler.readLimited")
	}
	return data, nil
}
