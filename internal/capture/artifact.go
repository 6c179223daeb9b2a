package capture

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Media types accepted by the default policy
const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypePDF  = "application/pdf"
)

// Artifact is a captured or selected receipt file owned by a Session until commit
type Artifact struct {
	ID        string
	Filename  string
	MediaType string
	Data      []byte
}

// NewArtifact builds an artifact with a fresh client-side ID
func NewArtifact(filename string, data []byte, mediaType string) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		Filename:  filename,
		MediaType: NormalizeMediaType(mediaType),
		Data:      data,
	}
}

// SizeBytes returns the artifact size
func (a *Artifact) SizeBytes() int64 {
	return int64(len(a.Data))
}

// release drops the local bytes once the artifact is no longer owned locally
func (a *Artifact) release() {
	a.Data = nil
}

// NormalizeMediaType lowercases a media type and strips any parameters
func NormalizeMediaType(mediaType string) string {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return MediaTypeJPEG
	}
	return mediaType
}

// DetectMediaType works out the media type of a picked or dropped file.
// The declared type wins unless it is empty or generic; then the content is
// sniffed, and the extension is the last resort.
func DetectMediaType(filename string, data []byte, declared string) string {
	declared = NormalizeMediaType(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	if len(data) > 0 {
		detected := NormalizeMediaType(mimetype.Detect(data).String())
		if detected != "application/octet-stream" && detected != "text/plain" {
			return detected
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return MediaTypeJPEG
	case ".png":
		return MediaTypePNG
	case ".pdf":
		return MediaTypePDF
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
