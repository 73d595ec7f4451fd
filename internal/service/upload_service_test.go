package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
)

type storageStub struct {
	uploaded bytes.Buffer
	name     string
	err      error
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploaded.Reset()
	if _, err := s.uploaded.ReadFrom(reader); err != nil {
		return "", err
	}
	s.name = name
	return "https://cdn.example.com/" + name, nil
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestAttachmentServiceRejectsSize(t *testing.T) {
	svc := NewAttachmentService(&storageStub{}, 1, testLogger())

	file := buildFileHeader(t, "file.txt", bytes.Repeat([]byte("a"), 2*1024*1024))

	_, err := svc.Store(context.Background(), file)
	require.ErrorIs(t, err, apperror.ErrValidationFailed)
}

func TestAttachmentServiceTypeValidation(t *testing.T) {
	svc := NewAttachmentService(&storageStub{}, 5, testLogger())

	file := buildFileHeader(t, "tool.exe", []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff\x00\x00"))
	_, err := svc.Store(context.Background(), file)
	require.ErrorIs(t, err, apperror.ErrValidationFailed)
}

func TestAttachmentServiceSuccess(t *testing.T) {
	storage := &storageStub{}
	svc := NewAttachmentService(storage, 5, testLogger())

	file := buildFileHeader(t, "Team Photo!.PNG", pngHeader)

	attachment, err := svc.Store(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, "team-photo.png", attachment.Name)
	require.Equal(t, "image/png", attachment.MimeType)
	require.Equal(t, int64(len(pngHeader)), attachment.Size)
	require.Contains(t, attachment.URL, "team-photo")
	require.Equal(t, pngHeader, storage.uploaded.Bytes())
}

func TestAttachmentServiceStorageFailureIsTransient(t *testing.T) {
	svc := NewAttachmentService(&storageStub{err: errors.New("cdn down")}, 5, testLogger())

	_, err := svc.Store(context.Background(), buildFileHeader(t, "image.png", pngHeader))
	require.ErrorIs(t, err, apperror.ErrTransient)
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
