// Package webctx provides the per-request Context: a facade over the
// request, response writer, session, and a scratch map that middleware
// and route handlers share for the lifetime of one request.
package webctx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/allaspectsdev/webcore/internal/session"
)

// Context is created fresh for every incoming request and discarded once
// the response is written; it is not pooled (see SPEC_FULL.md §4.8).
type Context struct {
	Request   *http.Request
	RequestID string
	Params    map[string]string

	w    http.ResponseWriter
	mu   sync.Mutex
	data map[string]any

	Session *session.Session

	responded bool
	status    int
}

// New wraps an in-flight request/response pair.
func New(w http.ResponseWriter, r *http.Request, requestID string) *Context {
	return &Context{
		Request:   r,
		RequestID: requestID,
		w:         w,
		data:      make(map[string]any),
	}
}

// Get returns a scratch value and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores a scratch value visible to every later middleware slot and
// the route handler within this request.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Responded reports whether a response has already been written, so the
// pipeline can tell a short-circuit apart from a normal completion.
func (c *Context) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

// StatusCode returns the status written, or 0 if nothing has been
// written yet.
func (c *Context) StatusCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Context) markResponded(status int) {
	c.mu.Lock()
	c.responded = true
	c.status = status
	c.mu.Unlock()
}

func (c *Context) writeText(status int, contentType, body string) {
	c.w.Header().Set("Content-Type", contentType)
	c.w.WriteHeader(status)
	_, _ = c.w.Write([]byte(body))
	c.markResponded(status)
}

func (c *Context) writeBytes(status int, contentType string, body []byte) {
	c.w.Header().Set("Content-Type", contentType)
	c.w.WriteHeader(status)
	_, _ = c.w.Write(body)
	c.markResponded(status)
}

// Header exposes the underlying response header map so middleware can set
// cookies and other headers before a body is written.
func (c *Context) Header() http.Header {
	return c.w.Header()
}

// OK writes a bare 200 with no body.
func (c *Context) OK() { c.writeBytes(http.StatusOK, "", nil) }

// NoContent writes a 204.
func (c *Context) NoContent() { c.writeBytes(http.StatusNoContent, "", nil) }

// NotModified writes a 304 with no body.
func (c *Context) NotModified() { c.writeBytes(http.StatusNotModified, "", nil) }

// BadRequest writes a 400 with the given plain-text message.
func (c *Context) BadRequest(message string) {
	c.writeText(http.StatusBadRequest, "text/plain; charset=utf-8", orDefault(message, "Bad Request"))
}

// Unauthorized writes a 401 with the given plain-text message.
func (c *Context) Unauthorized(message string) {
	c.writeText(http.StatusUnauthorized, "text/plain; charset=utf-8", orDefault(message, "Unauthorized"))
}

// Forbidden writes a 403 with the given plain-text message.
func (c *Context) Forbidden(message string) {
	c.writeText(http.StatusForbidden, "text/plain; charset=utf-8", orDefault(message, "Forbidden"))
}

// NotFound writes a 404 with the given plain-text message.
func (c *Context) NotFound(message string) {
	c.writeText(http.StatusNotFound, "text/plain; charset=utf-8", orDefault(message, "Not Found"))
}

// Conflict writes a 409 with the given plain-text message.
func (c *Context) Conflict(message string) {
	c.writeText(http.StatusConflict, "text/plain; charset=utf-8", orDefault(message, "Conflict"))
}

// InternalServerError writes a 500 with the given plain-text message.
func (c *Context) InternalServerError(message string) {
	c.writeText(http.StatusInternalServerError, "text/plain; charset=utf-8", orDefault(message, "Internal Server Error"))
}

// NotImplemented writes a 501 with the given plain-text message.
func (c *Context) NotImplemented(message string) {
	c.writeText(http.StatusNotImplemented, "text/plain; charset=utf-8", orDefault(message, "Not Implemented"))
}

// TooManyRequests writes a 429 with a JSON error body and a Retry-After
// header expressed in seconds.
func (c *Context) TooManyRequests(retryAfterSeconds float64, message string) {
	c.w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfterSeconds))
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"type":        "rate_limited",
			"message":     orDefault(message, "Too Many Requests"),
			"retry_after": retryAfterSeconds,
		},
	})
	c.writeBytes(http.StatusTooManyRequests, "application/json", body)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// JSON serializes data and writes it as a 200 application/json response.
func (c *Context) JSON(data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("webctx: marshal json: %w", err)
	}
	c.writeBytes(http.StatusOK, "application/json", body)
	return nil
}

// HTML writes content as a 200 text/html response.
func (c *Context) HTML(content string) {
	c.writeText(http.StatusOK, "text/html; charset=utf-8", content)
}

// Text writes content as a 200 text/plain response.
func (c *Context) Text(content string) {
	c.writeText(http.StatusOK, "text/plain; charset=utf-8", content)
}

// Redirect writes a 302 redirect to location.
func (c *Context) Redirect(location string) {
	c.w.Header().Set("Location", location)
	c.w.WriteHeader(http.StatusFound)
	c.markResponded(http.StatusFound)
}

// WriteRaw writes body as-is under the given status and content type,
// for callers replaying an already-serialized representation (e.g. a
// cached response) rather than encoding one.
func (c *Context) WriteRaw(status int, contentType string, body []byte) {
	c.writeBytes(status, contentType, body)
}

// Binary writes data as a 200 response of the given content type,
// optionally as a downloadable attachment.
func (c *Context) Binary(data []byte, contentType, downloadName string) {
	if downloadName != "" {
		c.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	c.writeBytes(http.StatusOK, contentType, data)
}

// contentTypeByExtension is a small, explicit table rather than
// mime.TypeByExtension, so output is stable across host OS mime.types
// configuration.
var contentTypeByExtension = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
}

// GuessContentType maps a file extension to a content type, defaulting to
// application/octet-stream.
func GuessContentType(path string) string {
	if ct, ok := contentTypeByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
