// Package s3mem is an in-memory stand-in for the S3 calls the backend makes.
// It is used by tests across the module.
package s3mem

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type object struct {
	data        []byte
	modified    time.Time
	contentType string
}

type bucket struct {
	region  string
	created time.Time
	objects map[string]object
}

// Server holds buckets and counts calls per operation.
type Server struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   map[string]int

	// Errors, keyed by operation name, are returned instead of performing the call.
	Errors map[string]error
	// Now stamps new objects. Defaults to time.Now.
	Now func() time.Time
}

// New creates an empty server.
func New() *Server {
	return &Server{
		buckets: make(map[string]*bucket),
		calls:   make(map[string]int),
		Errors:  make(map[string]error),
		Now:     time.Now,
	}
}

// CreateBucket adds a bucket in region.
func (s *Server) CreateBucket(name, region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; ok {
		return
	}
	s.buckets[name] = &bucket{region: region, created: s.Now(), objects: make(map[string]object)}
}

// Put stores data at bucket/key, creating the bucket in us-east-1 if needed.
func (s *Server) Put(bucketName, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		b = &bucket{region: "us-east-1", created: s.Now(), objects: make(map[string]object)}
		s.buckets[bucketName] = b
	}
	b.objects[key] = object{data: append([]byte(nil), data...), modified: s.Now()}
}

// Object returns the stored bytes at bucket/key.
func (s *Server) Object(bucketName, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		return nil, false
	}
	obj, ok := b.objects[key]
	return obj.data, ok
}

// Calls returns how many times op was invoked.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.Errors[op]
}

func (s *Server) lookup(name string) (*bucket, error) {
	b, ok := s.buckets[name]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return b, nil
}

func (s *Server) ListBuckets(ctx context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	if err := s.enter("ListBuckets"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &s3.ListBucketsOutput{}
	for _, name := range names {
		out.Buckets = append(out.Buckets, s3types.Bucket{
			Name:         aws.String(name),
			CreationDate: aws.Time(s.buckets[name].created),
		})
	}
	return out, nil
}

func (s *Server) GetBucketLocation(ctx context.Context, in *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	if err := s.enter("GetBucketLocation"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	location := b.region
	if location == "us-east-1" {
		location = ""
	}
	return &s3.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraint(location)}, nil
}

// ListObjectsV2 emits keys and common prefixes in lexical order. The
// continuation token is the last key or prefix emitted.
func (s *Server) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := s.enter("ListObjectsV2"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}

	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)
	after := aws.ToString(in.ContinuationToken)
	maxKeys := int(aws.ToInt32(in.MaxKeys))
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{
		Name:    in.Bucket,
		Prefix:  in.Prefix,
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	emitted := 0
	last := ""
	seen := make(map[string]bool)
	for _, k := range keys {
		entry := k
		isPrefix := false
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				entry = k[:len(prefix)+i+len(delimiter)]
				isPrefix = true
			}
		}
		if after != "" && entry <= after {
			continue
		}
		if isPrefix && seen[entry] {
			continue
		}
		if emitted == maxKeys {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(last)
			break
		}
		if isPrefix {
			seen[entry] = true
			out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			obj := b.objects[k]
			out.Contents = append(out.Contents, s3types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(obj.data))),
				LastModified: aws.Time(obj.modified),
				ETag:         aws.String(etag(k, obj)),
				StorageClass: s3types.ObjectStorageClassStandard,
			})
		}
		emitted++
		last = entry
	}
	if out.IsTruncated == nil {
		out.IsTruncated = aws.Bool(false)
	}
	out.KeyCount = aws.Int32(int32(emitted))
	return out, nil
}

func (s *Server) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := s.enter("HeadObject"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	obj, ok := b.objects[key]
	if !ok {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
		ETag:          aws.String(etag(key, obj)),
		ContentType:   aws.String(obj.contentType),
		StorageClass:  s3types.StorageClassStandard,
	}, nil
}

func (s *Server) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := s.enter("GetObject"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	obj, ok := b.objects[key]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
		ETag:          aws.String(etag(key, obj)),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (s *Server) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := s.enter("PutObject"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.lookup(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	obj := object{data: data, modified: s.Now(), contentType: aws.ToString(in.ContentType)}
	key := aws.ToString(in.Key)
	b.objects[key] = obj
	return &s3.PutObjectOutput{ETag: aws.String(etag(key, obj))}, nil
}

func (s *Server) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if err := s.enter("DeleteObject"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookup(aws.ToString(in.Bucket))
	if err != nil {
		return nil, err
	}
	delete(b.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func etag(key string, obj object) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write(obj.data)
	return fmt.Sprintf("\"%016x\"", h.Sum64())
}
