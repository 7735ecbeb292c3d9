package flowsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Resource is a flow or flow module, either as a desired document loaded
// from storage or as a live resource on the instance. A non-empty Type marks
// a flow; modules have no type.
type Resource struct {
	Name        string            `json:"Name"`
	Type        string            `json:"Type,omitempty"`
	Description string            `json:"Description,omitempty"`
	Tags        map[string]string `json:"Tags,omitempty"`
	Content     string            `json:"Content"`

	ID    string `json:"-"`
	ARN   string `json:"-"`
	State string `json:"-"`
	// Key is the storage key a desired document was read from.
	Key string `json:"-"`
}

// IsFlow reports whether the resource is a flow rather than a module.
func (r Resource) IsFlow() bool {
	return r.Type != ""
}

// parseDocument decodes a stored document and checks its nested content is
// JSON.
func parseDocument(key string, body []byte) (Resource, error) {
	var doc Resource
	if err := json.Unmarshal(body, &doc); err != nil {
		return Resource{}, &FormatError{Document: key, Cause: err}
	}
	if doc.Name == "" {
		return Resource{}, &FormatError{Document: key, Cause: errors.New("document has no Name")}
	}
	if !json.Valid([]byte(doc.Content)) {
		return Resource{}, &FormatError{Document: doc.Name, Cause: errors.New("content is not a JSON document")}
	}
	doc.Key = key
	return doc, nil
}

// encodeDocument renders a document the way export writes it: two-space
// indentation, no HTML escaping, trailing newline.
func encodeDocument(doc Resource) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DocumentStore persists configuration documents.
type DocumentStore interface {
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, body []byte) error
}

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store reads and writes documents in an S3 bucket.
type S3Store struct {
	client s3API
	bucket string
}

// NewS3Store returns a store over bucket.
func NewS3Store(client s3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// List pages through ListObjectsV2 until the continuation token runs out.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}

// Read fetches one object body.
func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Write uploads body as a JSON object.
func (s *S3Store) Write(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// DirStore reads and writes documents under a local directory. Keys are
// slash-separated paths relative to the root.
type DirStore struct {
	root string
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// List walks the tree and returns the .json files whose key starts with
// prefix.
func (d *DirStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(p) != ".json" {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Read returns the file content for key.
func (d *DirStore) Read(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(d.path(key))
}

// Write creates parent directories as needed and writes the file.
func (d *DirStore) Write(_ context.Context, key string, body []byte) error {
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, body, 0o644)
}

func (d *DirStore) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(path.Clean("/" + key)))
}
