package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt-capture/internal/capture"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message}
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitReceipt accepts a multipart upload and answers with the tracking ID
func (s *Server) handleSubmitReceipt(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	if header.Size > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Please compress or resize your image.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := capture.DetectMediaType(header.Filename, data, header.Header.Get("Content-Type"))

	job, err := s.service.Submit(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error submitting receipt", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "The receipt could not be stored. Please try again.")
		return
	}

	writeJSON(w, http.StatusAccepted, job.Resolution())
}

// handleGetJob reports the authoritative status of an extraction job
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Job(r.PathValue("id"))
	if err != nil {
		s.notFoundOrError(w, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Resolution())
}

// handleRetryJob re-runs extraction for a failed or stalled job
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			writeError(w, http.StatusConflict, "This receipt has already been processed.")
			return
		}
		s.notFoundOrError(w, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusAccepted, job.Resolution())
}

// handleListReceipts returns all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		s.notFoundOrError(w, err, "Receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the stored file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		s.notFoundOrError(w, err, "File not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt and its file
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		s.notFoundOrError(w, err, "Receipt not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) notFoundOrError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	slog.Error("Request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
