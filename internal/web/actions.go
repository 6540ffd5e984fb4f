package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"ForceView/internal/run"
	"ForceView/internal/upload"
)

type uploadedFile struct {
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Chunks   int    `json:"chunks"`
}

// uploadFiles streams every file of the multipart form to the backend in chunks.
func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "File too big or malformed form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "File required")
		return
	}
	if !s.tracker.Begin("Uploading") {
		writeError(w, http.StatusConflict, "Another operation is in progress.")
		return
	}

	// The backend may hold the target file open, e.g. a result database.
	s.runs.Disconnect(r.Context())

	out := make([]uploadedFile, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.tracker.Fail("Error: cannot read " + fh.Filename)
			writeError(w, http.StatusBadRequest, "Invalid file")
			return
		}
		res, err := s.uploader.Upload(r.Context(), fh.Filename, f, fh.Size, s.tracker.Uploaded)
		f.Close()
		if err != nil {
			s.logger.Error().Err(err).Str("file", fh.Filename).Msg("upload file")
			msg := "Error uploading " + fh.Filename + "."
			var ce *upload.ChunkError
			if errors.As(err, &ce) {
				msg = ce.Error()
			}
			s.tracker.Fail("Error: " + msg)
			writeError(w, http.StatusBadGateway, msg)
			return
		}
		s.logger.Info().Str("file", res.Filename).Int64("bytes", res.Bytes).Int("chunks", res.Chunks).Msg("file uploaded")
		out = append(out, uploadedFile{Filename: res.Filename, Bytes: res.Bytes, Chunks: res.Chunks})
	}
	s.tracker.Done(upload.ProgressText(out[len(out)-1].Bytes, out[len(out)-1].Bytes))
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

type runBody struct {
	Fem      string `json:"fem"`
	Mpcf     string `json:"mpcf"`
	Spcf     string `json:"spcf"`
	MeshOnly bool   `json:"mesh_only"`
}

func (s *Server) runExtractor(w http.ResponseWriter, r *http.Request) {
	var body runBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	rc := *s.runs
	rc.Confirm = func(run.Request) bool { return body.MeshOnly }
	req := run.Request{Fem: body.Fem, Mpcf: body.Mpcf, Spcf: body.Spcf}

	if _, err := rc.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, run.Alert(err))
		return
	}
	if !s.tracker.Begin("Running") {
		writeError(w, http.StatusConflict, "A run is already in progress.")
		return
	}
	out, err := rc.Start(r.Context(), req, s.tracker)
	if err != nil {
		if alert := run.Alert(err); alert != "" {
			s.tracker.Release()
			writeError(w, http.StatusBadRequest, alert)
			return
		}
		writeError(w, http.StatusBadGateway, s.tracker.Snapshot().Message)
		return
	}
	go rc.Animate(s.baseCtx, out.Message, s.tracker)
	writeJSON(w, http.StatusAccepted, map[string]any{"id": out.ID, "message": out.Message, "warnings": out.Warnings})
}

type importBody struct {
	Database string `json:"database"`
}

func (s *Server) importDB(w http.ResponseWriter, r *http.Request) {
	var body importBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !s.tracker.Begin("Importing") {
		writeError(w, http.StatusConflict, "Another operation is in progress.")
		return
	}
	out, err := s.runs.ImportDB(r.Context(), body.Database)
	if err != nil {
		if alert := run.Alert(err); alert != "" {
			s.tracker.Release()
			writeError(w, http.StatusBadRequest, alert)
			return
		}
		s.tracker.Fail("Error: " + err.Error())
		writeError(w, http.StatusBadGateway, "Error importing database.")
		return
	}
	s.tracker.Done(out.Message)
	writeJSON(w, http.StatusOK, map[string]any{"id": out.ID, "message": out.Message})
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}
