// Package media stores the image and voice attachments exchanged once
// a conversation's media gate is granted. Files are content-sniffed,
// never trusted by extension.
package media

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"nestchat/errors"
)

// maxSniffBytes is how much of the upload is read for magic-byte
// detection before the rest is streamed to disk.
const maxSniffBytes = 3072

// Stored describes an accepted upload.
type Stored struct {
	ID       uuid.UUID `json:"id"`
	MimeType string    `json:"mimeType"`
	Size     int64     `json:"size"`
	URL      string    `json:"url"`
}

// Store writes uploads under a single directory, one file per media id.
type Store struct {
	log *slog.Logger
	dir string
}

func NewStore(log *slog.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating media directory %s: %w", dir, err)
	}
	return &Store{log: log, dir: dir}, nil
}

// Save sniffs the upload's real content type and persists it when it is
// an image or an audio clip. Anything else is refused regardless of the
// client-declared type.
func (s *Store) Save(r io.Reader) (Stored, error) {
	sniffBuf := make([]byte, maxSniffBytes)
	n, err := io.ReadFull(r, sniffBuf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Stored{}, fmt.Errorf("reading upload: %w", err)
	}
	sniffBuf = sniffBuf[:n]

	mime := mimetype.Detect(sniffBuf)
	if !isAllowed(mime.String()) {
		return Stored{}, fmt.Errorf("%w: unsupported media type %s", errors.ErrValidation, mime.String())
	}

	id := uuid.New()
	path := filepath.Join(s.dir, id.String()+mime.Extension())
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Stored{}, fmt.Errorf("creating media file: %w", err)
	}
	defer file.Close()

	written, err := file.Write(sniffBuf)
	if err != nil {
		return Stored{}, fmt.Errorf("writing media file: %w", err)
	}
	rest, err := io.Copy(file, r)
	if err != nil {
		return Stored{}, fmt.Errorf("writing media file: %w", err)
	}

	stored := Stored{
		ID:       id,
		MimeType: mime.String(),
		Size:     int64(written) + rest,
		URL:      "/api/media/" + id.String() + mime.Extension(),
	}
	s.log.Info("Media stored", "media_id", id, "mime_type", stored.MimeType, "size", stored.Size)
	return stored, nil
}

// Open returns the stored file for a previously saved media name.
// The name is the id plus extension exactly as issued by Save.
func (s *Store) Open(name string) (*os.File, error) {
	// Uploads never contain path separators; reject traversal outright.
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: invalid media name", errors.ErrValidation)
	}
	file, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: media %s", errors.ErrNotFound, name)
	}
	return file, err
}

func isAllowed(mime string) bool {
	return strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "audio/")
}
