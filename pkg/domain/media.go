package domain

// MediaKind discriminates listing media payloads.
type MediaKind string

// Supported media kinds as written in snapshot discriminator fields.
const (
	MediaImage MediaKind = "IMAGE"
	MediaVideo MediaKind = "VIDEO"
)

// MediaPayload is the tagged variant stored for listing media. Exactly one of
// ImagePayload or VideoPayload is built from the discriminator; payloads are
// never assembled by stripping fields from a shared map.
type MediaPayload interface {
	Kind() MediaKind
	// Column is the normalized column the payload is stored under.
	Column() string
	isMediaPayload()
}

// ImagePayload holds image-only media fields.
type ImagePayload struct {
	URL      string `json:"url"`
	Width    int64  `json:"width,omitempty"`
	Height   int64  `json:"height,omitempty"`
	Blurhash string `json:"blurhash,omitempty"`
	Alt      string `json:"alt,omitempty"`
}

// Kind implements MediaPayload.
func (ImagePayload) Kind() MediaKind { return MediaImage }

// Column implements MediaPayload.
func (ImagePayload) Column() string { return "imageData" }

func (ImagePayload) isMediaPayload() {}

// VideoPayload holds video-only media fields.
type VideoPayload struct {
	Platform     string `json:"platform"`
	URL          string `json:"url"`
	Duration     int64  `json:"duration,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Kind implements MediaPayload.
func (VideoPayload) Kind() MediaKind { return MediaVideo }

// Column implements MediaPayload.
func (VideoPayload) Column() string { return "videoData" }

func (VideoPayload) isMediaPayload() {}
