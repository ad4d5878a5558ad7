// Package qdrant stores per-document vector indexes as Qdrant collections over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

var _ vectorindex.Store = (*Store)(nil)

const (
	payloadText    = "text"
	defaultTimeout = 30 * time.Second
)

// Config holds connection parameters for a Qdrant gRPC endpoint.
type Config struct {
	Host    string
	Port    int
	APIKey  string
	UseTLS  bool
	Timeout time.Duration // per-call deadline
}

// Store implements vectorindex.Store using Qdrant collections.
type Store struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	health      pb.QdrantClient
	timeout     time.Duration
}

// New dials Qdrant. The connection is established lazily on first call.
func New(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", cfg.Host, port), opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	s := NewWithClients(pb.NewCollectionsClient(conn), pb.NewPointsClient(conn), pb.NewQdrantClient(conn), cfg.Timeout)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a Store over existing gRPC clients.
func NewWithClients(
	collections pb.CollectionsClient, points pb.PointsClient, health pb.QdrantClient, timeout time.Duration,
) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{collections: collections, points: points, health: health, timeout: timeout}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
	) error {
		return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, opts...)
	}
}

func (s *Store) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Exists checks whether the collection exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	resp, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", domain.ErrIndexStore, name, err)
	}
	return resp.GetResult().GetExists(), nil
}

// Create makes a cosine-distance collection. An existing collection is not an error.
func (s *Store) Create(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrIndexStore)
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dimension),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("%w: create %s: %w", domain.ErrIndexStore, name, err)
	}
	return nil
}

func alreadyExists(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.AlreadyExists || strings.Contains(strings.ToLower(st.Message()), "already exists")
}

// Ready is true when the collection status is green or yellow.
func (s *Store) Ready(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("%w: info %s: %w", domain.ErrIndexStore, name, err)
	}
	switch resp.GetResult().GetStatus() {
	case pb.CollectionStatus_Green, pb.CollectionStatus_Yellow:
		return true, nil
	default:
		return false, nil
	}
}

// Upsert writes points with the record uuid as id and the text as payload.
func (s *Store) Upsert(ctx context.Context, name string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Values}}},
			Payload: map[string]*pb.Value{
				payloadText: {Kind: &pb.Value_StringValue{StringValue: r.Text}},
			},
		}
	}

	wait := true
	ctx, cancel := s.call(ctx)
	defer cancel()
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", domain.ErrIndexStore, name, err)
	}
	return nil
}

// Query searches the collection; Qdrant returns points by descending score.
func (s *Store) Query(ctx context.Context, name string, vector []float32, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return []domain.Match{}, nil
	}
	ctx, cancel := s.call(ctx)
	defer cancel()
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrIndexStore, name, err)
	}

	matches := make([]domain.Match, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		matches = append(matches, domain.Match{
			ID:    pointID(pt.GetId()),
			Text:  pt.GetPayload()[payloadText].GetStringValue(),
			Score: float64(pt.GetScore()),
		})
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// Ping calls the Qdrant health check.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.call(ctx)
	defer cancel()
	if _, err := s.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("%w: health: %w", domain.ErrIndexStore, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
