package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Qdrant wraps gRPC connections to Qdrant's collections and points services.
// One Qdrant value is shared by every session index.
type Qdrant struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

var _ Store = (*Qdrant)(nil)

// NewQdrant dials the Qdrant gRPC endpoint and returns a ready client.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named cosine collection if it does not already exist.
func (c *Qdrant) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Upsert inserts or replaces points and waits until they are searchable.
func (c *Qdrant) Upsert(ctx context.Context, collection string, points ...Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		structs = append(structs, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: payload,
		})
	}
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", collection, notFound(err))
	}
	return nil
}

// Search performs a nearest-neighbor search and returns the top-K results.
func (c *Qdrant) Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]*SearchResult, error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          topK,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, notFound(err))
	}
	results := make([]*SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		payload := make(map[string]string, len(r.Payload))
		for k, v := range r.Payload {
			switch kind := v.Kind.(type) {
			case *pb.Value_StringValue:
				payload[k] = kind.StringValue
			case *pb.Value_IntegerValue:
				payload[k] = strconv.FormatInt(kind.IntegerValue, 10)
			}
		}
		id := r.Id.GetUuid()
		if id == "" {
			id = strconv.FormatUint(r.Id.GetNum(), 10)
		}
		results = append(results, &SearchResult{ID: id, Score: r.Score, Payload: payload})
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (c *Qdrant) Count(ctx context.Context, collection string) (uint64, error) {
	exact := true
	resp, err := c.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, notFound(err))
	}
	return resp.GetResult().GetCount(), nil
}

// DeleteCollection drops the collection and all of its points.
func (c *Qdrant) DeleteCollection(ctx context.Context, name string) error {
	resp, err := c.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", name, notFound(err))
	}
	if !resp.GetResult() {
		return fmt.Errorf("delete collection %s: %w", name, ErrCollectionNotFound)
	}
	return nil
}

// ListCollections returns the names of every collection on the server.
func (c *Qdrant) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := c.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, d := range resp.GetCollections() {
		names = append(names, d.GetName())
	}
	return names, nil
}

// Close tears down the underlying gRPC connection.
func (c *Qdrant) Close() error {
	return c.conn.Close()
}

// notFound maps Qdrant's NotFound status onto ErrCollectionNotFound.
func notFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, status.Convert(err).Message())
	}
	return err
}
