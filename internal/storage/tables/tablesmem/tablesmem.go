// Package tablesmem is an in-memory stand-in for the catalog calls the tables
// backend makes.
package tablesmem

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3tables"
	tabletypes "github.com/aws/aws-sdk-go-v2/service/s3tables/types"
)

// Table is a stored table definition.
type Table struct {
	Name             string
	MetadataLocation string
	Created          time.Time
	Modified         time.Time
}

type bucket struct {
	name       string
	arn        string
	created    time.Time
	namespaces map[string]map[string]Table
}

// Server holds table buckets and counts calls per operation.
type Server struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   map[string]int

	// Errors, keyed by operation name, are returned instead of performing the call.
	Errors map[string]error
}

// New creates an empty server.
func New() *Server {
	return &Server{
		buckets: make(map[string]*bucket),
		calls:   make(map[string]int),
		Errors:  make(map[string]error),
	}
}

// ARN returns the ARN assigned to a bucket name.
func ARN(name string) string {
	return "arn:aws:s3tables:us-east-1:111122223333:bucket/" + name
}

// AddBucket creates a table bucket.
func (s *Server) AddBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; ok {
		return
	}
	s.buckets[name] = &bucket{
		name:       name,
		arn:        ARN(name),
		created:    time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC),
		namespaces: make(map[string]map[string]Table),
	}
}

// AddNamespace creates a namespace, and its bucket if needed.
func (s *Server) AddNamespace(bucketName, namespace string) {
	s.AddBucket(bucketName)
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buckets[bucketName]
	if _, ok := b.namespaces[namespace]; !ok {
		b.namespaces[namespace] = make(map[string]Table)
	}
}

// AddTable creates a table, and its namespace and bucket if needed.
func (s *Server) AddTable(bucketName, namespace string, t Table) {
	s.AddNamespace(bucketName, namespace)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucketName].namespaces[namespace][t.Name] = t
}

// Calls returns how many times op was invoked.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if err := s.Errors[op]; err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) byARN(arn string) (*bucket, error) {
	for _, b := range s.buckets {
		if b.arn == arn {
			return b, nil
		}
	}
	return nil, &tabletypes.NotFoundException{Message: aws.String("The specified bucket does not exist.")}
}

// page returns the window of n sorted names after token and the next token.
func page(names []string, token *string, max *int32) ([]string, *string) {
	sort.Strings(names)
	start := 0
	if t := aws.ToString(token); t != "" {
		start, _ = strconv.Atoi(t)
	}
	n := int(aws.ToInt32(max))
	if n <= 0 {
		n = 1000
	}
	if start > len(names) {
		start = len(names)
	}
	end := start + n
	if end >= len(names) {
		return names[start:], nil
	}
	return names[start:end], aws.String(strconv.Itoa(end))
}

func (s *Server) ListTableBuckets(ctx context.Context, in *s3tables.ListTableBucketsInput, _ ...func(*s3tables.Options)) (*s3tables.ListTableBucketsOutput, error) {
	if err := s.enter(ctx, "ListTableBuckets"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	window, next := page(names, in.ContinuationToken, in.MaxBuckets)

	out := &s3tables.ListTableBucketsOutput{ContinuationToken: next}
	for _, name := range window {
		b := s.buckets[name]
		out.TableBuckets = append(out.TableBuckets, tabletypes.TableBucketSummary{
			Arn:       aws.String(b.arn),
			Name:      aws.String(b.name),
			CreatedAt: aws.Time(b.created),
		})
	}
	return out, nil
}

func (s *Server) ListNamespaces(ctx context.Context, in *s3tables.ListNamespacesInput, _ ...func(*s3tables.Options)) (*s3tables.ListNamespacesOutput, error) {
	if err := s.enter(ctx, "ListNamespaces"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.byARN(aws.ToString(in.TableBucketARN))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(b.namespaces))
	for name := range b.namespaces {
		names = append(names, name)
	}
	window, next := page(names, in.ContinuationToken, in.MaxNamespaces)

	out := &s3tables.ListNamespacesOutput{ContinuationToken: next}
	for _, name := range window {
		out.Namespaces = append(out.Namespaces, tabletypes.NamespaceSummary{
			Namespace: strings.Split(name, "."),
			CreatedAt: aws.Time(b.created),
		})
	}
	return out, nil
}

func (s *Server) ListTables(ctx context.Context, in *s3tables.ListTablesInput, _ ...func(*s3tables.Options)) (*s3tables.ListTablesOutput, error) {
	if err := s.enter(ctx, "ListTables"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.byARN(aws.ToString(in.TableBucketARN))
	if err != nil {
		return nil, err
	}
	namespace := aws.ToString(in.Namespace)
	tables, ok := b.namespaces[namespace]
	if !ok {
		return nil, &tabletypes.NotFoundException{Message: aws.String("The specified namespace does not exist.")}
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	window, next := page(names, in.ContinuationToken, in.MaxTables)

	out := &s3tables.ListTablesOutput{ContinuationToken: next}
	for _, name := range window {
		t := tables[name]
		out.Tables = append(out.Tables, tabletypes.TableSummary{
			Name:       aws.String(t.Name),
			Namespace:  []string{namespace},
			TableARN:   aws.String(b.arn + "/table/" + t.Name),
			Type:       tabletypes.TableType("customer"),
			CreatedAt:  aws.Time(t.Created),
			ModifiedAt: aws.Time(t.Modified),
		})
	}
	return out, nil
}

func (s *Server) GetTable(ctx context.Context, in *s3tables.GetTableInput, _ ...func(*s3tables.Options)) (*s3tables.GetTableOutput, error) {
	if err := s.enter(ctx, "GetTable"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.byARN(aws.ToString(in.TableBucketARN))
	if err != nil {
		return nil, err
	}
	namespace := aws.ToString(in.Namespace)
	t, ok := b.namespaces[namespace][aws.ToString(in.Name)]
	if !ok {
		return nil, &tabletypes.NotFoundException{Message: aws.String("The specified table does not exist.")}
	}
	return &s3tables.GetTableOutput{
		Name:              aws.String(t.Name),
		Namespace:         []string{namespace},
		TableARN:          aws.String(b.arn + "/table/" + t.Name),
		Type:              tabletypes.TableType("customer"),
		Format:            tabletypes.OpenTableFormat("ICEBERG"),
		MetadataLocation:  aws.String(t.MetadataLocation),
		WarehouseLocation: aws.String("s3://" + b.name + "-warehouse"),
		VersionToken:      aws.String("v1"),
		CreatedAt:         aws.Time(t.Created),
		ModifiedAt:        aws.Time(t.Modified),
	}, nil
}
