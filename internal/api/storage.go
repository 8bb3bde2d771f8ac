package api

import (
	"context"
	"io"
	"time"
)

// BucketFile is a booking file already stored server-side
type BucketFile struct {
	FileName     string    `json:"fileName"`
	UploadDate   time.Time `json:"uploadDate"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ListValidFiles returns the booking files the server considers processable
func (c *Client) ListValidFiles(ctx context.Context) ([]BucketFile, error) {
	body, err := c.get(ctx, c.endpoints.ValidFiles, "Failed to fetch files")
	if err != nil {
		return nil, err
	}

	var wire filesWire
	if err := c.decode(schemaFiles, body, &wire); err != nil {
		return nil, err
	}
	if !wire.Success {
		msg := wire.Error
		if msg == "" {
			msg = "Failed to fetch files"
		}
		return nil, &RejectedError{Message: msg}
	}

	files := make([]BucketFile, 0, len(wire.Files))
	for _, f := range wire.Files {
		files = append(files, BucketFile{
			FileName:     f.FileName,
			UploadDate:   parseTime(f.UploadDate),
			Size:         int64(intOf(f.Size)),
			LastModified: parseTime(f.LastModified),
		})
	}
	return files, nil
}

// UploadFile sends one booking file as the multipart field "file" and
// returns the name the server stored it under
func (c *Client) UploadFile(ctx context.Context, fileName string, content io.Reader) (string, error) {
	resp, err := c.send.R().
		SetContext(ctx).
		SetFileReader("file", fileName, content).
		Post(c.buildURL(c.endpoints.Upload))
	body, err := c.handle(ctx, resp, err, "Upload failed")
	if err != nil {
		return "", err
	}

	var wire uploadWire
	if err := c.decode(schemaUpload, body, &wire); err != nil {
		return "", err
	}
	if !wire.Success {
		msg := wire.Error
		if msg == "" {
			msg = wire.Message
		}
		if msg == "" {
			msg = "Upload failed"
		}
		return "", &RejectedError{Message: msg}
	}
	if wire.FileName == "" {
		return fileName, nil
	}
	return wire.FileName, nil
}
