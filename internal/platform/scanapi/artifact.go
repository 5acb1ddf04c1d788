package scanapi

import "bytes"

// Artifact is a downloaded analysis result.
type Artifact struct {
	Data        []byte
	ContentType string
	// Extension includes the leading dot, or is empty for unknown types.
	Extension string
	FileName  string
}

// DefaultContentType is used when no signature matches.
const DefaultContentType = "application/octet-stream"

var signatures = []struct {
	magic       []byte
	contentType string
	extension   string
}{
	{[]byte{0x25, 0x50, 0x44, 0x46}, "application/pdf", ".pdf"},
	{[]byte{0x50, 0x4B, 0x03, 0x04}, "application/zip", ".zip"},
	{[]byte{0x1F, 0x8B}, "application/gzip", ".gz"},
	{[]byte{0x52, 0x61, 0x72, 0x21}, "application/x-rar-compressed", ".rar"},
}

// Sniff returns the media type and extension of data from its leading bytes.
func Sniff(data []byte) (contentType, extension string) {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.contentType, sig.extension
		}
	}
	return DefaultContentType, ""
}

// ArtifactFileName is the attachment name for the result of task id.
func ArtifactFileName(id, extension string) string {
	return "analysis-result-" + id + extension
}

// NewArtifact wraps data downloaded for task id.
func NewArtifact(id string, data []byte) *Artifact {
	contentType, ext := Sniff(data)
	return &Artifact{
		Data:        data,
		ContentType: contentType,
		Extension:   ext,
		FileName:    ArtifactFileName(id, ext),
	}
}
