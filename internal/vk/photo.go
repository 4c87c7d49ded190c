package vk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/snospb/vk-sno-bot/internal/errors"
)

// maxPhotoBytes is VK's upload limit for message photos.
const maxPhotoBytes = 50 << 20

type uploadServer struct {
	UploadURL string `json:"upload_url"`
}

type uploadResult struct {
	Server int64  `json:"server"`
	Photo  string `json:"photo"`
	Hash   string `json:"hash"`
}

type savedPhoto struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"owner_id"`
	AccessKey string `json:"access_key"`
}

// PhotoAttachment returns the "photo<owner>_<id>" attachment for p, uploading
// it on first use. Results are cached per Photo.Key and concurrent uploads of
// the same key share one flow.
func (c *Client) PhotoAttachment(ctx context.Context, peerID int64, p Photo) (string, error) {
	if p.Key == "" {
		return "", apperrors.NewValidationError("photo.key", "required")
	}
	if v, ok := c.photos.Load(p.Key); ok {
		return v.(string), nil
	}

	v, err, shared := c.uploadSF.Do(p.Key, func() (any, error) {
		if v, ok := c.photos.Load(p.Key); ok {
			return v, nil
		}
		// The flow outlives a single caller's cancellation.
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.uploadTimeout)
		defer cancel()

		attachment, err := c.uploadPhoto(uctx, peerID, p)
		if err != nil {
			return nil, err
		}
		c.photos.Store(p.Key, attachment)
		return attachment, nil
	})
	if shared && c.metrics != nil {
		c.metrics.RecordSingleflightDedup("vk_photo")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForgetPhoto drops a cached attachment so the next send uploads again.
func (c *Client) ForgetPhoto(key string) {
	c.photos.Delete(key)
}

func (c *Client) uploadPhoto(ctx context.Context, peerID int64, p Photo) (string, error) {
	data, err := c.readPhoto(ctx, p)
	if err != nil {
		return "", err
	}

	var server uploadServer
	if err := c.call(ctx, "photos.getMessagesUploadServer", url.Values{
		"peer_id": {strconv.FormatInt(peerID, 10)},
	}, &server); err != nil {
		return "", err
	}
	if server.UploadURL == "" {
		return "", errors.New("empty upload_url")
	}

	uploaded, err := c.postPhoto(ctx, server.UploadURL, filepath.Base(p.Key), data)
	if err != nil {
		return "", err
	}

	var saved []savedPhoto
	if err := c.call(ctx, "photos.saveMessagesPhoto", url.Values{
		"server": {strconv.FormatInt(uploaded.Server, 10)},
		"photo":  {uploaded.Photo},
		"hash":   {uploaded.Hash},
	}, &saved); err != nil {
		return "", err
	}
	if len(saved) == 0 {
		return "", errors.New("saveMessagesPhoto returned no photos")
	}

	ph := saved[0]
	attachment := fmt.Sprintf("photo%d_%d", ph.OwnerID, ph.ID)
	if ph.AccessKey != "" {
		attachment += "_" + ph.AccessKey
	}
	return attachment, nil
}

func (c *Client) readPhoto(ctx context.Context, p Photo) ([]byte, error) {
	if p.Path != "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return nil, fmt.Errorf("read photo: %w", err)
		}
		return data, nil
	}
	if p.URL == "" {
		return nil, apperrors.NewValidationError("photo", "path or url required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build photo request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("photo %s exceeds %d bytes", p.Key, maxPhotoBytes)
	}
	return data, nil
}

// postPhoto sends the multipart upload to the server returned by
// photos.getMessagesUploadServer.
func (c *Client) postPhoto(ctx context.Context, uploadURL, filename string, data []byte) (*uploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload photo: status %d", resp.StatusCode)
	}

	var result uploadResult
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if result.Photo == "" || result.Photo == "[]" {
		return nil, errors.New("upload server accepted no photo")
	}
	return &result, nil
}
