package capture

// ReasonCode names the first policy rule an artifact violated
type ReasonCode string

const (
	ReasonUnsupportedType ReasonCode = "unsupported-type"
	ReasonSizeExceeded    ReasonCode = "size-exceeded"
)

// DefaultMaxBytes is the largest artifact the default policy accepts (10 MiB)
const DefaultMaxBytes int64 = 10 << 20

// ValidationResult is the outcome of checking one artifact
type ValidationResult struct {
	OK     bool
	Reason ReasonCode
}

// Policy holds the artifact acceptance rules
type Policy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultPolicy accepts JPEG, PNG and PDF up to 10 MiB
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:     DefaultMaxBytes,
		AllowedTypes: []string{MediaTypeJPEG, MediaTypePNG, MediaTypePDF},
	}
}

// Validate checks the media type first and the size second
func (p Policy) Validate(a *Artifact) ValidationResult {
	if !p.allows(a.MediaType) {
		return ValidationResult{Reason: ReasonUnsupportedType}
	}
	if a.SizeBytes() > p.MaxBytes {
		return ValidationResult{Reason: ReasonSizeExceeded}
	}
	return ValidationResult{OK: true}
}

func (p Policy) allows(mediaType string) bool {
	mediaType = NormalizeMediaType(mediaType)
	for _, t := range p.AllowedTypes {
		if NormalizeMediaType(t) == mediaType {
			return true
		}
	}
	return false
}
