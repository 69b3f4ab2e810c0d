package service

import (
	"bytes"
	"context"
	"edutest_backend/internal/config"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ExportSink stores a finished export and returns where it can be fetched.
type ExportSink interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
}

// LocalExportSink 本地存储实现
type LocalExportSink struct {
	Dir string
}

func (p *LocalExportSink) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Dir, filename)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return "/exports/" + filename, nil
}

// MinioExportSink MinIO存储实现
type MinioExportSink struct {
	Bucket string
	Client *minio.Client
}

func NewMinioExportSink(cfg config.ExportConfig) (*MinioExportSink, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioExportSink{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioExportSink) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Bucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return "/" + p.Bucket + "/" + filename, nil
}

// NewExportSink falls back to the local directory when minio is unusable.
func NewExportSink(cfg config.ExportConfig) ExportSink {
	if cfg.Type == util.ExportMinio {
		p, err := NewMinioExportSink(cfg)
		if err == nil {
			return p
		}
		logger.Log.Warn("MinIO export sink unavailable, using local directory", zap.Error(err))
	}
	return &LocalExportSink{Dir: cfg.LocalPath}
}

type SubmissionLister interface {
	List() []model.Submission
}

type ExportService struct {
	Submissions SubmissionLister
	Tests       TestFinder
	Sink        ExportSink
}

func NewExportService(subs SubmissionLister, tests TestFinder, sink ExportSink) *ExportService {
	return &ExportService{Submissions: subs, Tests: tests, Sink: sink}
}

var exportHeader = []string{"Student", "Test", "Score", "Completed at"}

// WriteCSV writes the submission history with a UTF-8 byte order mark so
// spreadsheet tools pick the right encoding.
func (s *ExportService) WriteCSV(w io.Writer) error {
	if _, err := w.Write([]byte("\uFEFF")); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, sub := range s.Submissions.List() {
		title := util.ExportMissingTest
		if t, ok := s.Tests.FindByID(sub.TestID); ok {
			title = t.Title
		}
		row := []string{
			sub.StudentName,
			title,
			strconv.FormatFloat(sub.Score, 'f', -1, 64),
			sub.CompletedAt.Local().Format(util.TimeFormat),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Publish renders the CSV and hands it to the configured sink.
func (s *ExportService) Publish(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("submissions_%s.csv", time.Now().Format("20060102_150405"))
	return s.Sink.Upload(ctx, filename, bytes.NewReader(buf.Bytes()), int64(buf.Len()), util.MimeCSV)
}
