// Package blob stores message attachments and hands back the reference
// that clients put in a send-message event.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"chatrelay/backend/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrEmptyFile is returned for zero-byte uploads.
var ErrEmptyFile = errors.New("empty file")

// sniffLen is how much of the content is read to detect its type.
const sniffLen = 3072

// Store persists attachment bytes under a name and returns a public URL.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

// Upload detects the content type of r, stores it under a fresh object name
// and returns the attachment reference.
func Upload(ctx context.Context, store Store, filename string, r io.Reader, size int64) (models.Attachment, error) {
	if size == 0 {
		return models.Attachment{}, ErrEmptyFile
	}
	contentType, body, err := Detect(r)
	if err != nil {
		return models.Attachment{}, err
	}

	url, err := store.Put(ctx, ObjectName(filename), body, size, contentType)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	return models.Attachment{
		URL:      url,
		Filename: filepath.Base(filename),
		MimeType: contentType,
		Size:     size,
	}, nil
}

// Detect sniffs the MIME type of r. The returned reader yields the full
// content, including the sniffed prefix.
func Detect(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()
	return contentType, io.MultiReader(bytes.NewReader(head), r), nil
}

// ObjectName returns a collision-free name that keeps the original extension.
func ObjectName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return uuid.New().String() + ext
}
