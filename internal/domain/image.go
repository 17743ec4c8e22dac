package domain

// ImageRequest is the provider-agnostic text-to-image request shape used by the
// image adapter and image integrations.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
}
