package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadChunkID  = "chunk_id"
	payloadBuildID  = "build_id"
	qdrantBatchSize = 256
)

// QdrantIndex keeps vectors in a Qdrant collection. Point IDs are UUIDs derived
// from chunk IDs; the chunk ID and the build ID travel in the payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimensions int
	size       int
	build      string
}

var _ Persistent = (*QdrantIndex)(nil)

// NewQdrantIndex connects to the Qdrant server at urlStr ("http://host:port").
// The gRPC port is derived from the HTTP port (HTTP port + 1, default 6334).
func NewQdrantIndex(urlStr, collection string, dimensions int) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	host, port, err := qdrantAddr(urlStr)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, collection: collection, dimensions: dimensions}, nil
}

func qdrantAddr(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// PointID maps a chunk ID to the UUID used as its Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// Reset drops and recreates the collection with cosine distance.
func (q *QdrantIndex) Reset(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	q.dimensions = dims
	q.size = 0
	return nil
}

// Add upserts vectors in batches and waits for each batch to be applied.
func (q *QdrantIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	wait := true
	for start := 0; start < len(ids); start += qdrantBatchSize {
		end := start + qdrantBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			if len(vectors[i]) != q.dimensions {
				return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), q.dimensions)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(PointID(ids[i])),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: q.payload(ids[i]),
			})
		}
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
		q.size += len(points)
	}
	return nil
}

// Search queries the collection and maps hits back to chunk IDs.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != q.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), q.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	results := make([]*VectorResult, 0, len(points))
	for _, p := range points {
		id := ""
		if v, ok := p.Payload[payloadChunkID]; ok && v != nil {
			id = v.GetStringValue()
		}
		if id == "" {
			continue
		}
		results = append(results, &VectorResult{ID: id, Score: float64(p.Score)})
	}
	return results, nil
}

func (q *QdrantIndex) payload(chunkID string) map[string]*qdrant.Value {
	m := map[string]any{payloadChunkID: chunkID}
	if q.build != "" {
		m[payloadBuildID] = q.build
	}
	return qdrant.NewValueMap(m)
}

// SetBuild tags points upserted from now on with build.
func (q *QdrantIndex) SetBuild(build string) {
	q.build = build
}

// CountBuild returns the exact number of points in the collection and how
// many of them were added for build. A missing collection counts as empty.
func (q *QdrantIndex) CountBuild(ctx context.Context, build string) (int, int, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return 0, 0, nil
	}
	exact := true
	total, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count points: %w", err)
	}
	q.size = int(total)
	if build == "" || total == 0 {
		return int(total), 0, nil
	}
	tagged, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadBuildID, build)},
		},
		Exact: &exact,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count build points: %w", err)
	}
	return int(total), int(tagged), nil
}

// Size returns the number of points added or last counted.
func (q *QdrantIndex) Size() int {
	return q.size
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
