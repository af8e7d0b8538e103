package index

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadSegmentIDField stores the original segment id in the point payload,
// since Qdrant only accepts UUIDs or positive integers as point ids.
// Grounded verbatim on the teacher's qdrantVector (internal/persistence/
// databases/qdrant_vector.go), generalized from arbitrary string ids to
// segment ids and from a flat metadata map to Filter-shaped payload fields.
const payloadSegmentIDField = "_segment_id"

// QdrantVector is a VectorIndex backed by Qdrant's gRPC API.
type QdrantVector struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantVector dials dsn (host[:port], default port 6334, optional
// ?api_key=... query param) and ensures the named collection exists with
// cosine distance, matching the teacher's NewQdrantVector.
func NewQdrantVector(dsn, collection string, dimensions int) (*QdrantVector, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	q := &QdrantVector{client: client, collection: collection, dimension: dimensions}
	ctx := context.Background()
	if err := q.EnsureIndex(ctx, dimensions); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantVector) EnsureIndex(ctx context.Context, dimensions int) error {
	if dimensions > 0 {
		q.dimension = dimensions
	}
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointIDFor(segmentID string) (string, bool) {
	if _, err := uuid.Parse(segmentID); err == nil {
		return segmentID, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(segmentID)).String(), true
}

func (q *QdrantVector) BulkUpsert(ctx context.Context, segments []IndexedSegment) (int, error) {
	points := make([]*qdrant.PointStruct, 0, len(segments))
	for _, s := range segments {
		uuidStr, remapped := pointIDFor(s.SegmentID)
		payload := map[string]any{
			"document_id": s.DocumentID,
			"source_type": s.SourceType,
			"source_id":   s.SourceID,
			"project":     s.Project,
			"owner":       s.Owner,
		}
		if remapped {
			payload[payloadSegmentIDField] = s.SegmentID
		}
		vec := make([]float32, len(s.Embedding))
		copy(vec, s.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points}); err != nil {
		return 0, err
	}
	return len(points), nil
}

func (q *QdrantVector) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)}}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter}},
	})
	if err != nil {
		return 0, err
	}
	// Qdrant's delete-by-filter response does not report a count; the caller
	// (the ingestion pipeline) only checks the error, so 0 is a safe stand-in.
	return 0, nil
}

func (q *QdrantVector) SearchVector(ctx context.Context, vector []float32, filter Filter, k, _ int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var must []*qdrant.Condition
	if filter.SourceType != "" {
		must = append(must, qdrant.NewMatch("source_type", filter.SourceType))
	}
	if filter.SourceID != "" {
		must = append(must, qdrant.NewMatch("source_id", filter.SourceID))
	}
	if filter.Project != "" {
		must = append(must, qdrant.NewMatch("project", filter.Project))
	}
	if filter.Owner != "" {
		must = append(must, qdrant.NewMatch("owner", filter.Owner))
	}
	var qf *qdrant.Filter
	if len(must) > 0 {
		qf = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if id == "" {
			id = hit.Id.String()
		}
		md := make(map[string]string)
		for k, v := range hit.Payload {
			if k == payloadSegmentIDField {
				id = v.GetStringValue()
				continue
			}
			md[k] = v.GetStringValue()
		}
		out = append(out, Result{SegmentID: id, Score: float64(hit.Score), Metadata: md})
	}
	return out, nil
}

func (q *QdrantVector) Close() error { return q.client.Close() }

var _ VectorIndex = (*QdrantVector)(nil)
