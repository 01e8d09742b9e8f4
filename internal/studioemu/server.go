package studioemu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stencil/internal/domain"
	"stencil/internal/infra"
)

// Options configures the emulator.
type Options struct {
	// BaseURL is the externally reachable address used to mint signed
	// write URLs and result URLs. Set it after binding when the listen
	// address is dynamic (httptest).
	BaseURL string
	// CompleteAfter is the number of status reads a job stays pending
	// before completing. Zero completes on the first read.
	CompleteAfter int
	Logger        *infra.Logger
}

// Server emulates the three external studio services — signed uploads, the
// generation job API, and the download proxy — against in-memory state. It
// implements only their public contracts, nothing of their internals.
type Server struct {
	mu            sync.Mutex
	baseURL       string
	objects       map[string][]byte
	objectTypes   map[string]string
	jobs          map[string]*emuJob
	uploadToken   string
	completeAfter int
	failNext      string
	httpClient    *http.Client
	logger        *infra.Logger
}

type emuJob struct {
	userID   string
	sourceOf string
	video    bool
	reads    int
	failWith string
}

// New constructs an emulator.
func New(opts Options) *Server {
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Server{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		objects:       make(map[string][]byte),
		objectTypes:   make(map[string]string),
		jobs:          make(map[string]*emuJob),
		uploadToken:   uuid.NewString(),
		completeAfter: opts.CompleteAfter,
		httpClient:    &http.Client{},
		logger:        logger,
	}
}

// SetBaseURL updates the external address, for servers bound to a dynamic
// port.
func (s *Server) SetBaseURL(baseURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// FailNextJob makes the next submitted job fail with the given message.
func (s *Server) FailNextJob(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = message
}

// Routes assembles the emulator's HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/get-emd-upload-url", s.handleSignURL)
	r.Put("/upload/{fileName}", s.handleUpload)
	r.Get("/files/{fileName}", s.handleFile)
	r.Post("/image-gen", s.handleSubmit(false))
	r.Post("/video-gen", s.handleSubmit(true))
	r.Get("/image-gen/{userID}/{jobID}/status", s.handleStatus)
	r.Get("/video-gen/{userID}/{jobID}/status", s.handleStatus)
	r.Get("/download-proxy", s.handleProxy)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignURL(w http.ResponseWriter, r *http.Request) {
	fileName := r.URL.Query().Get("fileName")
	if fileName == "" {
		http.Error(w, "fileName is required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	writeURL := s.baseURL + "/upload/" + fileName + "?token=" + s.uploadToken
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, writeURL)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "fileName")
	s.mu.Lock()
	token := s.uploadToken
	s.mu.Unlock()
	if r.URL.Query().Get("token") != token {
		http.Error(w, "invalid upload token", http.StatusForbidden)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.mu.Lock()
	s.objects[fileName] = data
	s.objectTypes[fileName] = contentType
	s.mu.Unlock()
	s.logger.Debug().Str("file_name", fileName).Int("bytes", len(data)).Msg("studioemu: object stored")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "fileName")
	s.mu.Lock()
	data, ok := s.objects[fileName]
	contentType := s.objectTypes[fileName]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	if contentType == "" {
		if byExt := mime.TypeByExtension(path.Ext(fileName)); byExt != "" {
			contentType = byExt
		} else {
			contentType = "application/octet-stream"
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

type submitRequest struct {
	Model           string          `json:"model"`
	ToolType        string          `json:"toolType"`
	EffectID        string          `json:"effectId"`
	ImageURL        json.RawMessage `json:"imageUrl"`
	UserID          string          `json:"userId"`
	RemoveWatermark bool            `json:"removeWatermark"`
	IsPrivate       bool            `json:"isPrivate"`
}

func (s *Server) handleSubmit(video bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		sourceURL, err := sourceFromRequest(req, video)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		if req.EffectID == "" {
			http.Error(w, "effectId is required", http.StatusBadRequest)
			return
		}

		jobID := uuid.NewString()
		s.mu.Lock()
		job := &emuJob{
			userID:   req.UserID,
			sourceOf: path.Base(sourceURL),
			video:    video,
			failWith: s.failNext,
		}
		s.failNext = ""
		s.jobs[jobID] = job
		s.mu.Unlock()

		s.logger.Info().
			Str("job_id", jobID).
			Str("effect_id", req.EffectID).
			Bool("video", video).
			Msg("studioemu: job accepted")
		writeJSON(w, http.StatusOK, map[string]string{
			"jobId":  jobID,
			"status": string(domain.JobStatusQueued),
		})
	}
}

// sourceFromRequest accepts the image endpoint's bare string and the video
// endpoint's single-element list.
func sourceFromRequest(req submitRequest, video bool) (string, error) {
	if len(req.ImageURL) == 0 {
		return "", fmt.Errorf("imageUrl is required")
	}
	if video {
		var urls []string
		if err := json.Unmarshal(req.ImageURL, &urls); err != nil || len(urls) == 0 {
			return "", fmt.Errorf("imageUrl must be a non-empty list")
		}
		return urls[0], nil
	}
	var u string
	if err := json.Unmarshal(req.ImageURL, &u); err != nil || u == "" {
		return "", fmt.Errorf("imageUrl must be a string")
	}
	return u, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.userID != userID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if job.failWith != "" {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": string(domain.JobStatusFailed),
			"error":  job.failWith,
		})
		return
	}

	job.reads++
	if job.reads <= s.completeAfter {
		status := domain.JobStatusProcessing
		if job.reads == 1 {
			status = domain.JobStatusQueued
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
		return
	}

	resultName := s.renderResultLocked(jobID, job)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": string(domain.JobStatusCompleted),
		"result": []map[string]string{{"mediaUrl": s.baseURL + "/files/" + resultName}},
	})
}

// renderResultLocked materializes the job's output object: the uploaded
// source bytes when they exist, a placeholder PNG otherwise. Callers hold
// s.mu.
func (s *Server) renderResultLocked(jobID string, job *emuJob) string {
	ext := "png"
	if job.video {
		ext = "mp4"
	}
	name := "result_" + jobID + "." + ext
	if _, done := s.objects[name]; done {
		return name
	}
	if src, ok := s.objects[job.sourceOf]; ok && !job.video {
		s.objects[name] = src
		s.objectTypes[name] = s.objectTypes[job.sourceOf]
		return name
	}
	s.objects[name] = placeholderPNG()
	s.objectTypes[name] = "image/png"
	if job.video {
		s.objectTypes[name] = "video/mp4"
	}
	return name
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	resp, err := s.httpClient.Get(target)
	if err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		http.Error(w, fmt.Sprintf("upstream status %d", resp.StatusCode), http.StatusBadGateway)
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	io.Copy(w, resp.Body)
}

func placeholderPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
