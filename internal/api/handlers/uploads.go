package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/hugh/taskeasy/internal/storage"
)

// multipartMemory is how much of a form ParseMultipartForm keeps in memory
// before spilling files to disk.
const multipartMemory = 8 << 20

// BlobRemover disposes of blobs whose records were deleted or replaced.
// Failures are handled by the implementation and never reach the caller.
type BlobRemover interface {
	Remove(ctx context.Context, reason string, keys []string)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

// parseMultipart parses a form of at most maxBytes and answers 400 or 413 on
// failure.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return false
	}
	return true
}

// formFile returns the uploaded file under field, or nil when there is none.
func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

// formValue returns the first value of a multipart field and whether it was
// sent at all.
func formValue(r *http.Request, field string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values, ok := r.MultipartForm.Value[field]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// storeUpload copies fh into the blob store under prefix. The content type
// is sniffed from the file rather than trusted from the client.
func storeUpload(ctx context.Context, store storage.Store, prefix string, fh *multipart.FileHeader) (storage.Object, error) {
	f, err := fh.Open()
	if err != nil {
		return storage.Object{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return storage.Object{}, fmt.Errorf("reading upload: %w", err)
	}
	contentType := http.DetectContentType(head[:n])
	if isActiveContent(contentType) {
		contentType = "application/octet-stream"
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return storage.Object{}, fmt.Errorf("rewinding upload: %w", err)
	}

	return store.Put(ctx, storage.NewKey(prefix, fh.Filename), f, fh.Size, contentType)
}

// isActiveContent reports types a browser would render as a document and
// run scripts from.
func isActiveContent(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(mediaType) {
	case "text/html", "text/xml", "application/xml", "image/svg+xml":
		return true
	}
	return false
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
