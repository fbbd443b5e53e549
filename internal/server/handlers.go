package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"ytaudio/internal/download"
	"ytaudio/internal/failure"
)

type downloadRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// parseVideoURL accepts absolute http(s) URLs only.
func parseVideoURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("invalid url: missing host")
	}
	return u, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req downloadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid JSON body")
		return
	}
	target, err := parseVideoURL(req.URL)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.stats.active.Add(1)
	defer s.stats.active.Add(-1)

	out, err := s.downloader.Run(r.Context(), target.String())
	if err != nil {
		s.stats.failed.Add(1)
		var fe *failure.Error
		if !errors.As(err, &fe) {
			fe = failure.NewError(failure.Unexpected, 0, "", err)
		}
		writeDetail(w, httpStatus(fe.Kind()), fe.Detail())
		return
	}

	// Delivery and release are separate obligations: the file goes away
	// even if the client never receives it.
	defer s.files.Release(out.File.Path)
	s.serveFile(w, out)
}

func (s *Server) serveFile(w http.ResponseWriter, out *download.Outcome) {
	f, err := os.Open(out.File.Path)
	if err != nil {
		s.stats.failed.Add(1)
		s.log.Error("Failed to open downloaded file", "path", out.File.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", err))
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", out.File.MediaType)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, out.File.Name()))
	h.Set("Content-Length", strconv.FormatInt(out.File.Size, 10))
	h.Set("X-Download-Attempts", strconv.Itoa(out.Attempts))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		s.stats.failed.Add(1)
		s.log.Warn("File delivery interrupted", "path", out.File.Path, "sent", n, "size", out.File.Size, "error", err)
		return
	}
	s.stats.completed.Add(1)
}
