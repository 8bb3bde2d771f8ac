package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/models"
)

// MsgNetwork is reported when the upload never reached the server
const MsgNetwork = "Network error during upload"

// Uploader sends one booking file to the partner bucket
type Uploader interface {
	UploadFile(ctx context.Context, fileName string, content io.Reader) (string, error)
}

// Service validates and uploads booking files
type Service struct {
	uploader Uploader
	cfg      config.UploadConfig
	log      *logrus.Entry
}

// NewService creates an upload service
func NewService(uploader Uploader, cfg config.UploadConfig, log *logrus.Entry) *Service {
	return &Service{
		uploader: uploader,
		cfg:      cfg,
		log:      log.WithField("svc", "upload"),
	}
}

// Validate checks a file against the configured size and extension limits
func Validate(name string, size int64, cfg config.UploadConfig) error {
	if cfg.MaxBytes > 0 && size > cfg.MaxBytes {
		return &models.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("File size must be less than %dMB", cfg.MaxBytes/(1024*1024)),
		}
	}

	lower := strings.ToLower(name)
	for _, ext := range cfg.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return nil
		}
	}
	return &models.ValidationError{
		Field:   "file",
		Message: fmt.Sprintf("Only %s files are allowed", strings.Join(cfg.Extensions, ", ")),
	}
}

// UploadFiles validates every path first, then uploads them in order.
// It returns the server file names of the files uploaded before the first
// failure together with that failure.
func (s *Service) UploadFiles(ctx context.Context, paths []string) ([]string, error) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, &models.ValidationError{Field: "file", Message: fmt.Sprintf("%s is a directory", filepath.Base(p))}
		}
		if err := Validate(info.Name(), info.Size(), s.cfg); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		name, err := s.uploadOne(ctx, p)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

// UploadReader uploads content already held in memory, e.g. from a drag and drop
func (s *Service) UploadReader(ctx context.Context, name string, size int64, content io.Reader) (string, error) {
	if err := Validate(name, size, s.cfg); err != nil {
		return "", err
	}
	return s.send(ctx, name, content)
}

func (s *Service) uploadOne(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return s.send(ctx, filepath.Base(path), f)
}

func (s *Service) send(ctx context.Context, name string, content io.Reader) (string, error) {
	log := s.log.WithField("file", name)
	log.Info("Uploading booking file")

	stored, err := s.uploader.UploadFile(ctx, name, content)
	if err != nil {
		log.WithError(err).Warn("Upload failed")
		if api.IsNetwork(err) {
			return "", fmt.Errorf("%s: %w", MsgNetwork, err)
		}
		return "", err
	}
	if stored == "" {
		stored = name
	}
	log.WithField("stored_as", stored).Info("Booking file uploaded")
	return stored, nil
}

// ErrorMessage renders an upload error for the user
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if api.IsNetwork(err) {
		return MsgNetwork
	}
	return api.Message(err, err.Error())
}
