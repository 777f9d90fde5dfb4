package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tessera/api/internal/board"
	"tessera/api/internal/export"
	"tessera/api/internal/search"
	"tessera/api/internal/store"
)

const maxUploadBytes = 32 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "projects":
		s.handleProjects(w, r, parts)
	case "tabs":
		s.handleTabs(w, r, parts)
	case "blocks":
		s.handleBlocks(w, r, parts)
	case "properties":
		s.handleProperties(w, r, parts)
	case "files":
		s.handleFiles(w, r, parts)
	case "search":
		s.handleSearch(w, r, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	if s.service.CacheConfigured() {
		checks["cache"] = map[string]any{"status": "ok"}
		// A down cache degrades read latency but does not gate readiness.
		if err := s.service.PingCache(ctx); err != nil {
			checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListProjects(r.Context())
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateProject(r.Context(), body.Name, body.Description)
			s.respondStatus(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	projectID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetProject(r.Context(), projectID)
			s.respond(w, payload, err)
		case http.MethodPatch:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateProject(r.Context(), projectID, body.Name, body.Description)
			s.respond(w, payload, err)
		case http.MethodDelete:
			err := s.service.DeleteProject(r.Context(), projectID)
			s.respond(w, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "tabs" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListTabs(r.Context(), projectID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTab(r.Context(), projectID, body.Name)
			s.respondStatus(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTabs(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	tabID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodPatch:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateTab(r.Context(), tabID, body.Name)
			s.respond(w, payload, err)
		case http.MethodDelete:
			err := s.service.DeleteTab(r.Context(), tabID)
			s.respond(w, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "blocks" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListBlocks(r.Context(), tabID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Type string `json:"type"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateBlock(r.Context(), tabID, body.Type)
			s.respondStatus(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodGet {
		format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
		if format == "" {
			format = export.FormatHTML
		}
		result, err := s.service.ExportTab(r.Context(), tabID, format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Write(result.Data)
		return
	}

	if len(parts) >= 4 && parts[3] == "revisions" {
		s.handleRevisions(w, r, tabID, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRevisions(w http.ResponseWriter, r *http.Request, tabID string, parts []string) {
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			limit := 50
			if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
				if parsedLimit, err := strconv.Atoi(rawLimit); err == nil && parsedLimit > 0 {
					limit = parsedLimit
				}
			}
			payload, err := s.service.ListRevisions(r.Context(), tabID, limit)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Author  string `json:"author"`
				Message string `json:"message"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CommitRevision(r.Context(), tabID, body.Author, body.Message)
			s.respondStatus(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	hash := parts[4]

	if len(parts) == 5 && r.Method == http.MethodGet {
		payload, err := s.service.GetRevision(r.Context(), tabID, hash)
		s.respond(w, payload, err)
		return
	}

	if len(parts) == 6 && parts[5] == "restore" && r.Method == http.MethodPost {
		var body struct {
			Author string `json:"author"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.RestoreRevision(r.Context(), tabID, hash, body.Author)
		s.respond(w, payload, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	blockID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetBlock(r.Context(), blockID)
			s.respond(w, payload, err)
		case http.MethodDelete:
			err := s.service.DeleteBlock(r.Context(), blockID)
			s.respond(w, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 {
		switch parts[3] {
		case "content":
			if r.Method != http.MethodPut {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				Content         json.RawMessage `json:"content"`
				ExpectedVersion *int64          `json:"expectedVersion"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateBlockContent(r.Context(), blockID, body.Content, body.ExpectedVersion)
			s.respond(w, payload, err)
			return
		case "autosave":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				Content json.RawMessage `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.Autosave(r.Context(), blockID, body.Content)
			s.respondStatus(w, http.StatusAccepted, payload, err)
			return
		case "reorder":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				IDs []string `json:"ids"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			blk, err := s.service.GetBlock(r.Context(), blockID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			payload, err := s.service.ReorderBlocks(r.Context(), blk.TabID, body.IDs)
			s.respond(w, payload, err)
			return
		case "view":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.TableViewOf(r.Context(), blockID)
			s.respond(w, payload, err)
			return
		case "undo":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.Undo(r.Context(), blockID)
			s.respond(w, payload, err)
			return
		case "redo":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.Redo(r.Context(), blockID)
			s.respond(w, payload, err)
			return
		case "tasks":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body struct {
				Text string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTask(r.Context(), blockID, body.Text)
			s.respondStatus(w, http.StatusCreated, payload, err)
			return
		case "board":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.Board(r.Context(), blockID, strings.TrimSpace(r.URL.Query().Get("groupBy")))
			s.respond(w, payload, err)
			return
		case "timeline":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			payload, err := s.service.Timeline(r.Context(), blockID)
			s.respond(w, payload, err)
			return
		case "files":
			s.handleBlockFiles(w, r, blockID)
			return
		}
	}

	if len(parts) == 5 {
		switch parts[3] {
		case "table":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
				return
			}
			var body TableOpInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.ApplyTableOp(r.Context(), blockID, parts[4], body)
			s.respond(w, payload, err)
			return
		case "tasks":
			if parts[4] == "reorder" {
				if r.Method != http.MethodPost {
					writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
					return
				}
				var body struct {
					Order []string `json:"order"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.ReorderTasks(r.Context(), blockID, body.Order)
				s.respond(w, payload, err)
				return
			}
			taskID := parts[4]
			switch r.Method {
			case http.MethodPatch:
				var patch TaskPatch
				if err := decodeBody(r, &patch); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.UpdateTask(r.Context(), blockID, taskID, patch)
				s.respond(w, payload, err)
			case http.MethodDelete:
				err := s.service.DeleteTask(r.Context(), blockID, taskID)
				s.respond(w, map[string]any{"ok": true}, err)
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		case "board":
			if parts[4] == "move" && r.Method == http.MethodPost {
				var drop board.Drop
				if err := decodeBody(r, &drop); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				payload, err := s.service.BoardMove(r.Context(), blockID, drop)
				s.respond(w, payload, err)
				return
			}
		case "timeline":
			if parts[4] == "autoschedule" && r.Method == http.MethodPost {
				payload, err := s.service.AutoSchedule(r.Context(), blockID)
				s.respond(w, payload, err)
				return
			}
		case "files":
			if r.Method == http.MethodDelete {
				err := s.service.DetachFile(r.Context(), blockID, parts[4])
				s.respond(w, map[string]any{"ok": true}, err)
				return
			}
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleBlockFiles(w http.ResponseWriter, r *http.Request, blockID string) {
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.ListFiles(r.Context(), blockID)
		s.respond(w, payload, err)
	case http.MethodPost:
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart upload", nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		payload, err := s.service.AttachFile(r.Context(), blockID, header.Filename, contentType, header.Size, file)
		s.respondStatus(w, http.StatusCreated, payload, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleProperties(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 4 || r.Method != http.MethodPut {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	var updates store.PropertyUpdates
	if err := decodeBody(r, &updates); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.UpsertEntityProperties(r.Context(), parts[2], parts[3], updates)
	s.respond(w, payload, err)
}

func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 4 && parts[3] == "url" && r.Method == http.MethodGet {
		payload, err := s.service.FileURL(r.Context(), parts[2])
		s.respond(w, payload, err)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 2 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	query := search.Query{
		Text:            strings.TrimSpace(r.URL.Query().Get("q")),
		FilterType:      strings.TrimSpace(r.URL.Query().Get("type")),
		FilterProjectID: strings.TrimSpace(r.URL.Query().Get("projectId")),
	}
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if rawOffset := r.URL.Query().Get("offset"); rawOffset != "" {
		if parsed, err := strconv.Atoi(rawOffset); err == nil && parsed >= 0 {
			query.Offset = parsed
		}
	}
	payload, err := s.service.Search(r.Context(), query)
	s.respond(w, payload, err)
}

func (s *HTTPServer) respond(w http.ResponseWriter, payload any, err error) {
	s.respondStatus(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) respondStatus(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		errStatus, code, message, details := mapError(err)
		writeError(w, errStatus, code, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body reads as an empty object; 400 is reserved for
		// malformed JSON.
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrVersionConflict) {
		return http.StatusConflict, "CONFLICT", "Version conflict", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_DEPENDENCY_MISSING", "Export dependency missing", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
