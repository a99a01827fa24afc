package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Media is the resolved attachment of an image or file message. Images arrive
// inline; other files arrive as a named download reference.
type Media struct {
	IsImage     bool
	FileName    string
	Data        []byte
	DownloadURL string
}

// FetchMedia resolves the attachment of a media message. The endpoint answers
// with the image bytes directly, or with a JSON descriptor pointing at the
// download location for other file types.
func (s *Service) FetchMedia(ctx context.Context, messageID string) (Media, error) {
	path := "/media/get?message_id=" + url.QueryEscape(messageID)
	payload, headers, err := s.api.Download(ctx, path)
	if err != nil {
		return Media{}, fmt.Errorf("fetch media: %w", err)
	}

	contentType := headers.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		return Media{
			IsImage:  true,
			FileName: dispositionFileName(headers, "image.jpg"),
			Data:     payload,
		}, nil
	}

	var descriptor struct {
		FileName    string `json:"filename"`
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal(payload, &descriptor); err != nil {
		return Media{}, fmt.Errorf("decode media descriptor: %w", err)
	}
	return Media{
		FileName:    descriptor.FileName,
		DownloadURL: descriptor.DownloadURL,
	}, nil
}

// DownloadFile fetches the payload behind a media descriptor's download URL.
func (s *Service) DownloadFile(ctx context.Context, downloadURL string) ([]byte, error) {
	payload, _, err := s.api.Download(ctx, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return payload, nil
}

func dispositionFileName(headers http.Header, fallback string) string {
	disposition := headers.Get("Content-Disposition")
	if disposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return fallback
	}
	if name := params["filename"]; name != "" {
		return name
	}
	return fallback
}
