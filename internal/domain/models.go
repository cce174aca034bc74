// Package domain holds the types shared between the relay, its storage
// backends and the HTTP bindings.
package domain

// Object describes a file held by the remote object store.
type Object struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Size           int64  `json:"size"`
	WebViewLink    string `json:"webViewLink,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
	ThumbnailLink  string `json:"thumbnailLink,omitempty"`
}

// Links are the shareable URLs for a remote object. They are derived from the
// object id alone.
type Links struct {
	ViewURL     string `json:"viewUrl"`
	DownloadURL string `json:"downloadUrl"`
	EmbedURL    string `json:"embedUrl"`
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"-"`

	Links
}
