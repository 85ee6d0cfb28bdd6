package skuld

// Artifact is an opaque blob produced during scenario execution:
// a log capture, a metrics dump, a screenshot. The engine carries
// artifacts on results without inspecting content.
type Artifact struct {
	// Relation type: log / metrics / trace etc. Determines how content is consumed by clients
	Rel string `json:"rel,omitempty" yaml:"rel,omitempty"`

	// MimeType of the content
	MimeType string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`

	// Blob content of the artifact
	Content []byte `json:"content,omitempty" yaml:"content,omitempty"`
}
