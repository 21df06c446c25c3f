package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

const (
	defaultUploadTTL  = 15 * time.Minute
	defaultMaxBytes   = 8 << 20
	submissionsPrefix = "submissions"
)

var (
	// ErrContentTypeDenied is returned for uploads that are not images.
	ErrContentTypeDenied = errors.New("storage: content type not allowed")
	// ErrInvalidFileName is returned when the file name is empty or contains path characters.
	ErrInvalidFileName = errors.New("storage: invalid file name")

	allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic"}
)

// UploadRequest describes an image a customer wants to attach to a submission.
type UploadRequest struct {
	FileName    string
	ContentType string
}

// SignedUpload is the client-facing result of SignUpload.
type SignedUpload struct {
	UploadURL string
	Method    string
	Headers   map[string]string
	Object    string
	PublicURL string
	ExpiresAt time.Time
}

// Uploader issues V4 signed PUT URLs into the uploads bucket.
type Uploader struct {
	bucket   string
	signer   Signer
	ttl      time.Duration
	maxBytes int64
	now      func() time.Time
	newID    func() string
}

// UploaderOption customises the uploader.
type UploaderOption func(*Uploader)

// WithUploadTTL overrides how long signed URLs stay valid.
func WithUploadTTL(ttl time.Duration) UploaderOption {
	return func(u *Uploader) {
		if ttl > 0 {
			u.ttl = ttl
		}
	}
}

// WithMaxBytes caps the accepted object size.
func WithMaxBytes(n int64) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.maxBytes = n
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) UploaderOption {
	return func(u *Uploader) {
		if clock != nil {
			u.now = clock
		}
	}
}

// WithIDGenerator overrides the object id generator.
func WithIDGenerator(gen func() string) UploaderOption {
	return func(u *Uploader) {
		if gen != nil {
			u.newID = gen
		}
	}
}

// NewUploader constructs an uploader for the given bucket.
func NewUploader(bucket string, signer Signer, opts ...UploaderOption) (*Uploader, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errors.New("storage: signer is required")
	}
	u := &Uploader{
		bucket:   bucket,
		signer:   signer,
		ttl:      defaultUploadTTL,
		maxBytes: defaultMaxBytes,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

// SignUpload returns a signed PUT URL for a submission image together with the public URL the
// object will be served from once uploaded.
func (u *Uploader) SignUpload(ctx context.Context, req UploadRequest) (SignedUpload, error) {
	if u == nil {
		return SignedUpload{}, errors.New("storage: uploader not initialised")
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !slices.Contains(allowedImageTypes, contentType) {
		return SignedUpload{}, ErrContentTypeDenied
	}
	object, err := SubmissionImagePath(u.newID(), req.FileName)
	if err != nil {
		return SignedUpload{}, err
	}

	sizeRange := fmt.Sprintf("0,%d", u.maxBytes)
	expires := u.now().Add(u.ttl)
	signed, err := storage.SignedURL(u.bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: u.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		ContentType:    contentType,
		Expires:        expires,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		SignBytes: func(payload []byte) ([]byte, error) {
			return u.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedUpload{
		UploadURL: signed,
		Method:    http.MethodPut,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
		Object:    object,
		PublicURL: "https://storage.googleapis.com/" + u.bucket + "/" + object,
		ExpiresAt: expires,
	}, nil
}

// SubmissionImagePath builds submissions/{uploadID}/{fileName}.
func SubmissionImagePath(uploadID, fileName string) (string, error) {
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" || strings.ContainsAny(uploadID, "/\\") {
		return "", errors.New("storage: invalid upload id")
	}
	name := strings.TrimSpace(fileName)
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	return path.Join(submissionsPrefix, uploadID, name), nil
}
