// Package core provides the execution model types for keyflow.
package core

// Attachment represents a debug artifact captured during keyword execution
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, roi_screenshot, elements
	ContentType string `json:"contentType"` // MIME type: image/png, application/json, text/plain
	Path        string `json:"path"`        // File path relative to output directory, once persisted
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot    = "screenshot"
	AttachmentROIScreenshot = "roi_screenshot"
	AttachmentElements      = "elements"
	AttachmentSource        = "source"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Body:        data,
	}
}

// NewROIScreenshotAttachment creates an attachment holding a screenshot with
// the search region boundary drawn on it. The annotation is for debugging;
// detection never sees the annotated copy.
func NewROIScreenshotAttachment(data []byte) Attachment {
	return Attachment{
		Name:        AttachmentROIScreenshot,
		ContentType: ContentTypePNG,
		Body:        data,
	}
}

// NewSourceAttachment creates a page source attachment
func NewSourceAttachment(source string) Attachment {
	return Attachment{
		Name:        AttachmentSource,
		ContentType: ContentTypeText,
		Body:        []byte(source),
	}
}

// ArtifactConfig controls when debug artifacts are attached to records
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"` // Default: true
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess"` // Default: false

	// AnnotateROI draws the region-of-interest boundary on captured
	// screenshots when a keyword searched inside one.
	AnnotateROI bool `yaml:"annotateRoi" json:"annotateRoi"` // Default: true
}

// DefaultArtifactConfig returns sensible defaults for artifact capture
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		CaptureOnSuccess: false,
		AnnotateROI:      true,
	}
}

// ShouldCapture returns true if artifacts should be kept for the given status
func (c ArtifactConfig) ShouldCapture(status ExecStatus) bool {
	switch status {
	case StatusFail:
		return c.CaptureOnFailure
	case StatusSuccess:
		return c.CaptureOnSuccess
	default:
		return false
	}
}
