// Package server exposes the indexing and search operations over a small HTTP
// JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"findit/internal/event"
	"findit/internal/indexer"
	"findit/internal/mounts"
	"findit/internal/search"
	"findit/internal/storage"
)

// Server wires together the HTTP handlers for the API.
type Server struct {
	store      storage.Store
	indexer    *indexer.Indexer
	engine     *search.Engine
	bus        *event.Bus
	maxResults int
	baseCtx    context.Context
}

// New creates a Server instance backed by the provided components.
func New(store storage.Store, idx *indexer.Indexer, engine *search.Engine, bus *event.Bus, maxResults int) *Server {
	if maxResults <= 0 {
		maxResults = 1000
	}
	return &Server{
		store:      store,
		indexer:    idx,
		engine:     engine,
		bus:        bus,
		maxResults: maxResults,
		baseCtx:    context.Background(),
	}
}

// Routes returns the HTTP handler that exposes the application endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/scan/stop", s.handleScanStop)
	mux.HandleFunc("/api/mounts", s.handleMounts)
	mux.HandleFunc("/api/volumes", s.handleVolumes)
	mux.HandleFunc("/api/open", s.handleOpen)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// Start runs the HTTP server until the provided context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	values := r.URL.Query()
	req := search.Request{
		Query:      values.Get("query"),
		MatchCase:  parseBool(values.Get("matchCase")),
		Regex:      parseBool(values.Get("regex")),
		SearchPath: parseBool(values.Get("searchPath")),
		Location:   values.Get("location"),
		Type:       parseTypeFilter(values.Get("type")),
		MaxResults: s.maxResults,
	}
	if raw := values.Get("maxResults"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			req.MaxResults = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	start := time.Now()
	results, err := s.engine.Search(ctx, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"results": results,
		"count":   len(results),
		"elapsed": time.Since(start).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("query stats: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"files":          stats.Files,
		"directories":    stats.Directories,
		"totalSize":      stats.TotalSize,
		"totalSizeHuman": humanize.IBytes(uint64(stats.TotalSize)),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.indexer.Status())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Paths []string `json:"paths"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			return
		}
	}

	var err error
	if len(payload.Paths) > 0 {
		err = s.indexer.Start(s.baseCtx, payload.Paths)
	} else {
		err = s.indexer.IndexAll(s.baseCtx)
	}
	if err != nil {
		switch {
		case errors.Is(err, indexer.ErrScanInProgress):
			http.Error(w, "scan already in progress", http.StatusConflict)
		case errors.Is(err, indexer.ErrNoMountPoints):
			http.Error(w, "no enabled mount points registered", http.StatusBadRequest)
		default:
			http.Error(w, fmt.Sprintf("start scan: %v", err), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, map[string]any{"status": s.indexer.Status()})
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.indexer.Stop()
	writeJSON(w, map[string]any{"status": s.indexer.Status()})
}

func (s *Server) handleMounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mountPoints, err := s.store.ListMounts(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("list mount points: %v", err), http.StatusInternalServerError)
			return
		}
		if mountPoints == nil {
			mountPoints = []storage.MountPoint{}
		}
		writeJSON(w, map[string]any{"mounts": mountPoints})

	case http.MethodPost:
		var payload struct {
			Path           string `json:"path"`
			FilesystemType string `json:"filesystemType"`
		}
		if err := decodeBody(r, &payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if payload.Path == "" {
			http.Error(w, "missing path", http.StatusBadRequest)
			return
		}
		fsType := payload.FilesystemType
		if fsType == "" {
			fsType = mounts.DetectFilesystem(r.Context(), payload.Path)
		}
		if err := s.store.UpsertMount(r.Context(), payload.Path, fsType, true); err != nil {
			http.Error(w, fmt.Sprintf("register mount point: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"path": payload.Path, "filesystemType": fsType})

	case http.MethodPatch:
		var payload struct {
			Path    string `json:"path"`
			Enabled bool   `json:"enabled"`
		}
		if err := decodeBody(r, &payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if payload.Path == "" {
			http.Error(w, "missing path", http.StatusBadRequest)
			return
		}
		if err := s.store.SetMountEnabled(r.Context(), payload.Path, payload.Enabled); err != nil {
			http.Error(w, fmt.Sprintf("toggle mount point: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"path": payload.Path, "enabled": payload.Enabled})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	volumes, err := mounts.ListVolumes()
	if err != nil {
		http.Error(w, fmt.Sprintf("enumerate volumes: %v", err), http.StatusInternalServerError)
		return
	}
	if volumes == nil {
		volumes = []mounts.Volume{}
	}
	writeJSON(w, map[string]any{"volumes": volumes})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	within, err := s.isWithinMounts(r.Context(), payload.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("verify path: %v", err), http.StatusInternalServerError)
		return
	}
	if !within {
		http.Error(w, "path is outside every registered root", http.StatusBadRequest)
		return
	}

	if err := mounts.Open(payload.Path); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"opened": payload.Path})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(events)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	select {
	case ev, ok := <-events:
		if !ok {
			http.Error(w, "event stream closed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, ev)
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) isWithinMounts(ctx context.Context, path string) (bool, error) {
	mountPoints, err := s.store.ListMounts(ctx)
	if err != nil {
		return false, err
	}
	for _, mount := range mountPoints {
		if isSubPath(mount.Path, path) {
			return true, nil
		}
	}
	return false, nil
}

func isSubPath(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(raw)
	return err == nil && value
}

func parseTypeFilter(raw string) storage.TypeFilter {
	switch strings.ToLower(raw) {
	case string(storage.TypeFiles):
		return storage.TypeFiles
	case string(storage.TypeFolders):
		return storage.TypeFolders
	default:
		return storage.TypeAll
	}
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}
