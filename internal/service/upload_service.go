package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// Attachment describes a stored file ready to be referenced by a message.
type Attachment struct {
	URL      string
	Name     string
	Size     int64
	MimeType string
}

// AttachmentService validates uploaded files and hands them to storage.
type AttachmentService interface {
	Store(ctx context.Context, file *multipart.FileHeader) (Attachment, error)
}

type attachmentService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewAttachmentService constructs an attachment service. maxSizeMB defaults to 10.
func NewAttachmentService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) AttachmentService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &attachmentService{
		storage: storage,
		logger:  logger.With().Str("component", "attachment_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/gema-teamchat/internal/service/attachment"),
	}
}

func (s *attachmentService) Store(ctx context.Context, file *multipart.FileHeader) (Attachment, error) {
	ctx, span := s.tracer.Start(ctx, "attachment.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("attachment.max_bytes", s.maxSize))
	if file == nil {
		span.SetStatus(codes.Error, "validation failed")
		return Attachment{}, apperror.Validation("file is required")
	}
	if s.storage == nil {
		span.SetStatus(codes.Error, "storage disabled")
		return Attachment{}, apperror.Transient(fmt.Errorf("attachment storage is not configured"))
	}
	if file.Size > s.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return Attachment{}, apperror.Validation("file exceeds maximum allowed size")
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return Attachment{}, apperror.Validation("file could not be read")
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return Attachment{}, apperror.Validation("file could not be read")
	}
	if int64(buf.Len()) > s.maxSize {
		span.SetStatus(codes.Error, "payload too large")
		return Attachment{}, apperror.Validation("file exceeds maximum allowed size")
	}
	if buf.Len() == 0 {
		return Attachment{}, apperror.Validation("file is empty")
	}

	detected := mimetype.Detect(buf.Bytes()).String()
	if !isAllowedAttachment(detected) {
		span.SetStatus(codes.Error, "type not allowed")
		return Attachment{}, apperror.Validation("file type %s not allowed", detected)
	}

	name := sanitizeFileName(file.Filename)
	span.SetAttributes(
		attribute.String("attachment.name", name),
		attribute.String("attachment.mime", detected),
		attribute.Int64("attachment.size_bytes", int64(buf.Len())),
	)

	url, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return Attachment{}, apperror.Transient(err)
	}

	span.SetStatus(codes.Ok, "stored")
	s.logger.Debug().Str("name", name).Str("mime", detected).Msg("attachment stored")

	return Attachment{URL: url, Name: name, Size: int64(buf.Len()), MimeType: detected}, nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("attachment-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func isAllowedAttachment(mime string) bool {
	lower := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(lower, ";"); i >= 0 {
		lower = strings.TrimSpace(lower[:i])
	}
	if strings.HasPrefix(lower, "image/") || strings.HasPrefix(lower, "text/") {
		return true
	}
	switch lower {
	case "application/pdf", "application/zip", "application/x-zip-compressed",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return true
	default:
		return false
	}
}
