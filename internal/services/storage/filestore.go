package storage

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/chrisdd2/federated-login/model"
	"github.com/google/uuid"
)

var ErrMissingS3Client = errors.New("s3 client required for s3:// storage directory")

type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// FileStore keeps one json document per profile, either in a local directory or
// under an s3://bucket/prefix location.
type FileStore struct {
	dir    string
	bucket string
	prefix string
	s3Cl   S3Client
	ev     *fileEventer
}

func NewFileStore(dir string, s3Cl S3Client) (*FileStore, error) {
	if strings.HasPrefix(dir, "s3://") {
		if s3Cl == nil {
			return nil, ErrMissingS3Client
		}
		s3Url, err := url.Parse(dir)
		if err != nil {
			return nil, err
		}
		s := &FileStore{
			bucket: s3Url.Hostname(),
			prefix: strings.Trim(s3Url.Path, "/"),
			s3Cl:   s3Cl,
		}
		slog.Info("storage", "type", "s3", "bucket", s.bucket, "prefix", s.prefix)
		return s, nil
	}
	if err := os.MkdirAll(filepath.Join(dir, "profiles"), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.json"), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	slog.Info("storage", "type", "filesystem", "dir", dir)
	return &FileStore{dir: dir, ev: &fileEventer{f: f, w: bufio.NewWriter(f)}}, nil
}

// ids are provider issued, of any length and may contain path separators (openid urls)
func profileFilename(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (s *FileStore) isS3() bool {
	return s.s3Cl != nil
}

func (s *FileStore) key(id string) string {
	return path.Join(s.prefix, "profiles", profileFilename(id))
}

func (s *FileStore) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	var r io.ReadCloser
	if s.isS3() {
		resp, err := s.s3Cl.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(s.key(id))})
		if isNoSuchKey(err) {
			return nil, ErrProfileNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("s3.GetObject: %w", err)
		}
		r = resp.Body
	} else {
		f, err := os.Open(filepath.Join(s.dir, "profiles", profileFilename(id)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrProfileNotFound
		}
		if err != nil {
			return nil, err
		}
		r = f
	}
	defer r.Close()
	p := &model.UserProfile{}
	if err := json.NewDecoder(r).Decode(p); err != nil {
		return nil, fmt.Errorf("json.Decode %s: %w", id, err)
	}
	return p, nil
}

func (s *FileStore) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	if err := Validate(p); err != nil {
		return err
	}
	stored := stamp(p)
	buf, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if s.isS3() {
		err = s.putS3(ctx, stored.Id, buf)
	} else {
		err = s.putLocal(stored.Id, buf)
	}
	if err != nil {
		return err
	}
	p.CreatedAt = stored.CreatedAt
	return nil
}

func (s *FileStore) putS3(ctx context.Context, id string, buf []byte) error {
	_, err := s.s3Cl.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if isPreconditionFailed(err) {
		return ErrProfileExists
	}
	if err != nil {
		return fmt.Errorf("s3.PutObject: %w", err)
	}
	return nil
}

// putLocal writes a temp file and hard links it into place, the link fails if the profile exists
func (s *FileStore) putLocal(id string, buf []byte) error {
	dir := filepath.Join(s.dir, "profiles")
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	err = os.Link(tmp.Name(), filepath.Join(dir, profileFilename(id)))
	if errors.Is(err, fs.ErrExist) {
		return ErrProfileExists
	}
	return err
}

func (s *FileStore) Publish(ctx context.Context, eventType string, metadata map[string]string) error {
	if s.ev == nil {
		return ConsoleEventer{}.Publish(ctx, eventType, metadata)
	}
	slog.Info("event", "type", eventType, "metadata", metadata)
	return s.ev.Publish(ctx, eventType, metadata)
}

func (s *FileStore) Close() error {
	if s.ev != nil {
		return s.ev.Close()
	}
	return nil
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

type fileEventer struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func (f *fileEventer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w.Flush()
	return f.f.Close()
}

func (f *fileEventer) Publish(ctx context.Context, eventType string, metadata map[string]string) error {
	b, err := json.Marshal(Event{
		Id:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Type:     eventType,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w.Write(b)
	f.w.WriteByte('\n')
	return f.w.Flush()
}
