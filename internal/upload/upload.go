package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// ChunkSize is the size of every chunk except possibly the last.
const ChunkSize = 1 << 20

type ChunkSender interface {
	UploadChunk(ctx context.Context, filename string, offset int64, chunk []byte) error
}

// ProgressFunc is called after each chunk the backend accepted.
type ProgressFunc func(sent, total int64)

// ChunkError reports the chunk that stopped an upload.
type ChunkError struct {
	Filename string
	Offset   int64
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("upload %s: chunk at offset %d: %v", e.Filename, e.Offset, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

type Result struct {
	Filename string
	Bytes    int64
	Chunks   int
}

// Uploader streams a file to the backend one chunk at a time.
type Uploader struct {
	Client    ChunkSender
	ChunkSize int
}

func New(client ChunkSender) *Uploader {
	return &Uploader{Client: client, ChunkSize: ChunkSize}
}

// Upload sends r in order. A chunk is sent only after the previous one
// completed; the first failure aborts the rest.
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader, size int64, progress ProgressFunc) (Result, error) {
	res := Result{Filename: filename}
	if filename == "" {
		return res, errors.New("upload: empty filename")
	}
	chunkSize := u.ChunkSize
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}

	buf := make([]byte, chunkSize)
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return res, &ChunkError{Filename: filename, Offset: offset, Err: err}
		}
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := u.Client.UploadChunk(ctx, filename, offset, buf[:n]); err != nil {
				return res, &ChunkError{Filename: filename, Offset: offset, Err: err}
			}
			offset += int64(n)
			res.Chunks++
			res.Bytes = offset
			if progress != nil {
				total := size
				if total < offset {
					total = offset
				}
				progress(offset, total)
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return res, nil
		}
		if readErr != nil {
			return res, fmt.Errorf("upload %s: read: %w", filename, readErr)
		}
	}
}

// ProgressText renders sent/total for the progress label.
func ProgressText(sent, total int64) string {
	return fmt.Sprintf("Uploaded %s of %s", humanize.Bytes(uint64(max(sent, 0))), humanize.Bytes(uint64(max(total, 0))))
}
