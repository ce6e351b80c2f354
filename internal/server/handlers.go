package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"example.com/elpisgate/internal/common"
	"example.com/elpisgate/internal/elpis"
	"example.com/elpisgate/internal/pcapx"
	"example.com/elpisgate/internal/report"
	"example.com/elpisgate/internal/schema"
)

// Server coordinates HTTP handlers and manages temporary artifacts produced by
// decode requests. The registry is fixed at construction; requests never
// mutate it, so handlers share it without locking.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	registry    *schema.Registry
	capturePort int
	concurrency int
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	reg, err := opts.registry()
	if err != nil {
		return nil, err
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "elpisd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	capturePort := opts.CapturePort
	if capturePort <= 0 {
		capturePort = pcapx.DefaultPort
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		registry:    reg,
		capturePort: capturePort,
		concurrency: concurrency,
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) resolvePath(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty input path")
	}
	if art, ok := s.getArtifact(token); ok {
		return art.Path, nil
	}
	abs := token
	if !filepath.IsAbs(token) {
		abs = filepath.Clean(token)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

type decodeRequest struct {
	Input string `json:"input"`
	Data  []byte `json:"data"`
	Port  int    `json:"port"`
	Lang  string `json:"lang"`
}

// BufferResult is the decode outcome of one buffer. Captures contribute one
// buffer per datagram; file and inline inputs contribute a single buffer.
type BufferResult struct {
	Index       int                `json:"index"`
	Messages    []elpis.SubMessage `json:"messages"`
	Diagnostics []elpis.Diagnostic `json:"diagnostics,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (s *Server) collectBuffers(req decodeRequest) ([][]byte, string, error) {
	if len(req.Data) > 0 {
		return [][]byte{req.Data}, "inline", nil
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, "", errors.New("input or data required")
	}
	path, err := s.resolvePath(req.Input)
	if err != nil {
		return nil, "", fmt.Errorf("input resolve: %w", err)
	}
	source := req.Input
	if art, ok := s.getArtifact(req.Input); ok {
		source = art.Name
	}
	if isCapture(source) || isCapture(path) {
		port := req.Port
		if port <= 0 {
			port = s.capturePort
		}
		grams, err := pcapx.ExtractFile(path, port)
		if err != nil {
			return nil, "", err
		}
		bufs := make([][]byte, len(grams))
		for i, g := range grams {
			bufs[i] = g.Payload
		}
		return bufs, source, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return [][]byte{data}, source, nil
}

// decodeBuffers decodes each buffer independently, bounded by the server's
// concurrency. Results keep the input order.
func (s *Server) decodeBuffers(bufs [][]byte) []BufferResult {
	results := make([]BufferResult, len(bufs))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range bufs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := elpis.DecodeBuffer(bufs[i], s.registry)
			results[i] = BufferResult{
				Index:       i,
				Messages:    res.Messages,
				Diagnostics: res.Diagnostics,
			}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i)
	}
	wg.Wait()
	return results
}

func mergeResults(results []BufferResult) elpis.DecodeResult {
	var merged elpis.DecodeResult
	for _, r := range results {
		merged.Messages = append(merged.Messages, r.Messages...)
		merged.Diagnostics = append(merged.Diagnostics, r.Diagnostics...)
	}
	return merged
}

// buildReportArtifacts renders the report to JSON, PDF and a QR of its digest
// and registers all three for download.
func (s *Server) buildReportArtifacts(rep report.DecodeReport, lang report.Language) ([]ArtifactRef, error) {
	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		return nil, err
	}
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		return nil, err
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		return nil, err
	}
	if err := report.SavePDF(rep, pdfPath, lang); err != nil {
		return nil, err
	}
	digest, err := rep.Digest()
	if err != nil {
		return nil, err
	}
	png, err := report.DigestToQR(digest, 256)
	if err != nil {
		return nil, err
	}
	qrPath, err := s.tempPath("report-qr-*.png")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(qrPath, png, 0o644); err != nil {
		return nil, err
	}

	jsonArt, err := s.addArtifact(jsonPath, "decode_report.json", "application/json", "report")
	if err != nil {
		return nil, err
	}
	pdfArt, err := s.addArtifact(pdfPath, "decode_report.pdf", "application/pdf", "report")
	if err != nil {
		return nil, err
	}
	qrArt, err := s.addArtifact(qrPath, "decode_report_qr.png", "image/png", "report")
	if err != nil {
		return nil, err
	}
	return []ArtifactRef{toRef(jsonArt), toRef(pdfArt), toRef(qrArt)}, nil
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream := r.URL.Query().Get("stream") == "true"
	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	bufs, source, err := s.collectBuffers(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang, err := report.ParseLanguage(req.Lang)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := s.decodeBuffers(bufs)
	merged := mergeResults(results)
	rep := report.Build(source, s.registry, merged)
	common.Logf("decode %s: %d buffers, %d messages, %d diagnostics",
		source, len(bufs), rep.Summary.Messages, len(merged.Diagnostics))

	if stream {
		writer := NewNDJSONWriter(w)
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, res := range results {
			for _, msg := range res.Messages {
				if err := writer.WriteMessage(msg); err != nil {
					return
				}
			}
			for _, d := range res.Diagnostics {
				if err := writer.WriteDiagnostic(d); err != nil {
					return
				}
			}
			if res.Error != "" {
				_ = writer.WriteObject(map[string]any{
					"type":   "error",
					"buffer": res.Index,
					"error":  res.Error,
				})
			}
		}
		arts, err := s.buildReportArtifacts(rep, lang)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		_ = writer.WriteObject(struct {
			Type      string              `json:"type"`
			Report    report.DecodeReport `json:"report"`
			Artifacts []ArtifactRef       `json:"artifacts"`
		}{Type: "report", Report: rep, Artifacts: arts})
		return
	}

	arts, err := s.buildReportArtifacts(rep, lang)
	if err != nil {
		http.Error(w, fmt.Sprintf("render report: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Report    report.DecodeReport `json:"report"`
		Buffers   []BufferResult      `json:"buffers"`
		Artifacts []ArtifactRef       `json:"artifacts"`
	}{Report: rep, Buffers: results, Artifacts: arts}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	bufs, source, err := s.collectBuffers(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang, err := report.ParseLanguage(req.Lang)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	merged := mergeResults(s.decodeBuffers(bufs))
	rep := report.Build(source, s.registry, merged)
	common.Logf("report %s: %d buffers, %d messages, pass=%v",
		source, len(bufs), rep.Summary.Messages, rep.Summary.Pass)
	arts, err := s.buildReportArtifacts(rep, lang)
	if err != nil {
		http.Error(w, fmt.Sprintf("render report: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Report    report.DecodeReport `json:"report"`
		Artifacts []ArtifactRef       `json:"artifacts"`
	}{Report: rep, Artifacts: arts}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if idParam := r.URL.Query().Get("id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 0, 32)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid id: %v", err), http.StatusBadRequest)
			return
		}
		def, ok := s.registry.Lookup(int32(id))
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, def)
		return
	}
	resp := struct {
		Count int     `json:"count"`
		IDs   []int32 `json:"ids"`
	}{Count: s.registry.Count(), IDs: s.registry.IDs()}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.listArtifacts())
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	disposition := fmt.Sprintf("attachment; filename=\"%s\"", art.Name)
	w.Header().Set("Content-Disposition", disposition)
	io.Copy(w, f)
}

func isCapture(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pcap" || ext == ".cap"
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".dbc", ".txt":
		return "text/plain"
	case ".pcap", ".cap":
		return "application/vnd.tcpdump.pcap"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
