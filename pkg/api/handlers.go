package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/crypt"
	"github.com/ssargent/glogstore/pkg/store"
)

// defaultRecordLimit caps the records returned by one records request.
const defaultRecordLimit = 1000

// stream resolves the {proto} parameter, writing a 404 when it is unknown.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) (string, Stream, bool) {
	proto := chi.URLParam(r, "proto")
	st, ok := s.streams[proto]
	if !ok {
		sendError(w, fmt.Sprintf("Unknown stream %q", proto), http.StatusNotFound)
		return proto, nil, false
	}
	return proto, st, true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrEmptyRecord),
		errors.Is(err, store.ErrRecordTooLarge),
		errors.Is(err, store.ErrCacheTooSmall),
		errors.Is(err, store.ErrInvalidConfig),
		errors.Is(err, store.ErrNotArchive),
		errors.Is(err, codec.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, codec.ErrMissingKey), errors.Is(err, crypt.ErrInvalidKey):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]interface{}{"status": "healthy", "streams": len(s.streams)})
}

// handleWrite appends the request body as one record
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	proto, st, ok := s.stream(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, codec.MaxRecordLength+1))
	if err != nil {
		s.metrics.RecordStreamOperation(proto, "write", false, time.Since(start))
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := st.Write(body); err != nil {
		s.metrics.RecordStreamOperation(proto, "write", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to write record: %v", err), statusFor(err))
		return
	}

	s.metrics.RecordStreamOperation(proto, "write", true, time.Since(start))
	sendSuccess(w, map[string]interface{}{"message": "Record accepted", "bytes": len(body)})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	proto, st, ok := s.stream(w, r)
	if !ok {
		return
	}

	if err := st.Flush(); err != nil {
		s.metrics.RecordStreamOperation(proto, "flush", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to flush: %v", err), statusFor(err))
		return
	}

	s.metrics.RecordStreamOperation(proto, "flush", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "Cache flushed"})
}

// handleSnapshot lists archives, optionally rotating the cache first.
// Query: flush, min_records, min_bytes, order (asc, desc, none).
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	proto, st, ok := s.stream(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var cond store.SnapshotCondition
	var err error
	if v := q.Get("flush"); v != "" {
		if cond.Flush, err = strconv.ParseBool(v); err != nil {
			sendError(w, "Invalid flush parameter", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("min_records"); v != "" {
		if cond.MinRecords, err = strconv.Atoi(v); err != nil || cond.MinRecords < 0 {
			sendError(w, "Invalid min_records parameter", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("min_bytes"); v != "" {
		if cond.MinBytes, err = strconv.ParseInt(v, 10, 64); err != nil || cond.MinBytes < 0 {
			sendError(w, "Invalid min_bytes parameter", http.StatusBadRequest)
			return
		}
	}
	order, err := store.ParseFileOrder(q.Get("order"))
	if err != nil {
		sendError(w, "Invalid order parameter", http.StatusBadRequest)
		return
	}

	snap, err := st.ArchiveSnapshot(cond, order)
	s.metrics.RecordStreamOperation(proto, "snapshot", err == nil, time.Since(start))
	if err != nil {
		sendError(w, fmt.Sprintf("Snapshot failed: %v (%s)", err, snap.Status), statusFor(err))
		return
	}

	files := make([]string, len(snap.Files))
	for i, f := range snap.Files {
		files[i] = filepath.Base(f)
	}
	sendSuccess(w, SnapshotResponse{Files: files, Status: snap.Status})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	proto, st, ok := s.stream(w, r)
	if !ok {
		return
	}

	var req ExpireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExpireSeconds == nil {
		sendError(w, "Invalid JSON request, expire_seconds is required", http.StatusBadRequest)
		return
	}

	removed, err := st.ResetExpireSeconds(*req.ExpireSeconds)
	s.metrics.RecordStreamOperation(proto, "expire", err == nil, time.Since(start))
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to reset expiration: %v", err), statusFor(err))
		return
	}
	sendSuccess(w, ExpireResponse{ExpireSeconds: *req.ExpireSeconds, Removed: removed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.stream(w, r)
	if !ok {
		return
	}
	stats := st.Stats()
	s.metrics.UpdateStreamStats(stats)
	sendSuccess(w, stats)
}

// handleRecords decodes one archive (or the cache file) of a stream. The
// file is protected from retention while it is being read.
// Query: limit (default 1000).
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	proto, st, ok := s.stream(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		sendError(w, "Invalid archive name", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(name, store.ArchiveSuffix) && name != st.CacheFileName() {
		sendError(w, "Not a file of this stream", http.StatusBadRequest)
		return
	}

	limit := defaultRecordLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var opts []store.ReaderOption
	if s.config.PrivateKey != "" {
		opts = append(opts, store.WithPrivateKey(s.config.PrivateKey))
	}
	reader, err := st.OpenReader(filepath.Join(st.Config().RootDirectory, name), opts...)
	if err != nil {
		s.metrics.RecordStreamOperation(proto, "read", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to open %s: %v", name, err), statusFor(err))
		return
	}
	defer reader.Close()

	resp := RecordsResponse{File: name, Records: [][]byte{}}
	for {
		res, err := reader.Next()
		if err != nil {
			s.metrics.RecordStreamOperation(proto, "read", false, time.Since(start))
			sendError(w, fmt.Sprintf("Failed to read %s: %v", name, err), statusFor(err))
			return
		}
		if res.Kind == store.ResultEOF {
			break
		}
		if res.Kind == store.ResultRecord {
			if len(resp.Records) == limit {
				resp.Truncated = true
				break
			}
			resp.Records = append(resp.Records, res.Payload)
		}
	}
	resp.Recovered = reader.Recovered()
	resp.Broken = reader.Broken()

	s.metrics.RecordStreamOperation(proto, "read", true, time.Since(start))
	sendSuccess(w, resp)
}
