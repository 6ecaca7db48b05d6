package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/config"
	registrymigrate "github.com/misteriosai/agent-memory/internal/registry/migrate"
	registryvector "github.com/misteriosai/agent-memory/internal/registry/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	payloadText           = "text"
	payloadUserID         = "user_id"
	payloadAgentID        = "agent_id"
	payloadConversationID = "conversation_id"
	payloadMeta           = "meta"
	payloadCreatedAt      = "created_at"
)

var scopeFields = []string{payloadUserID, payloadAgentID, payloadConversationID}

// qdrantMigrator implements migrate.Migrator for Qdrant collection setup.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()
	return EnsureCollection(migrateCtx, conn, effectiveCollectionName(cfg), uint64(cfg.VectorDimension))
}

// EnsureCollection creates the cosine collection and its scope payload
// indexes when the collection does not exist yet.
func EnsureCollection(ctx context.Context, conn *grpc.ClientConn, collectionName string, dimension uint64) error {
	client := pb.NewCollectionsClient(conn)

	// Check if collection exists
	_, err := client.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collectionName})
	if err == nil {
		return nil
	}

	_, err = client.Create(ctx, &pb.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}

	points := pb.NewPointsClient(conn)
	wait := true
	for _, field := range scopeFields {
		_, err := points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: collectionName,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("qdrant migrate: index %s: %w", field, err)
		}
	}
	log.Info("Created Qdrant collection", "name", collectionName, "dimension", dimension)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return New(conn, effectiveCollectionName(cfg), cfg.VectorDimension), nil
}

// New returns a store over an existing connection. Close closes conn.
func New(conn *grpc.ClientConn, collectionName string, dimension int) *QdrantStore {
	return &QdrantStore{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: collectionName,
		dimension:      dimension,
	}
}

// QdrantStore implements VectorStore on a Qdrant collection. Scope keys and
// chunk text live in each point's payload.
type QdrantStore struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
	dimension      int
}

func (s *QdrantStore) Name() string { return "qdrant" }
func (s *QdrantStore) Close() error { return s.conn.Close() }

func (s *QdrantStore) Add(ctx context.Context, req registryvector.AddRequest) ([]uuid.UUID, error) {
	if req.Empty() {
		return nil, nil
	}
	if err := req.Validate(s.dimension); err != nil {
		return nil, err
	}
	entries := req.Entries(time.Now().UTC())
	points := make([]*pb.PointStruct, len(entries))
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return nil, &registryvector.ValidationError{Field: fmt.Sprintf("metadatas[%d]", i), Message: err.Error()}
		}
		payload := map[string]*pb.Value{
			payloadText:      stringValue(e.Text),
			payloadMeta:      stringValue(string(meta)),
			payloadCreatedAt: stringValue(e.CreatedAt.Format(time.RFC3339Nano)),
		}
		setIfPresent(payload, payloadUserID, e.UserID)
		setIfPresent(payload, payloadAgentID, e.AgentID)
		setIfPresent(payload, payloadConversationID, e.ConversationID)
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.ID.String()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Embedding},
				},
			},
			Payload: payload,
		}
		ids[i] = e.ID
	}
	// One upsert request is applied as a single batch; wait so the points are searchable on return.
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant add: %w", err)
	}
	return ids, nil
}

func (s *QdrantStore) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	if req.TopK <= 0 {
		return []registryvector.SearchResult{}, nil
	}
	if err := registryvector.ValidateQuery(req.Vector, s.dimension); err != nil {
		return nil, err
	}

	var must []*pb.Condition
	must = appendKeyword(must, payloadUserID, req.Filters.UserID)
	must = appendKeyword(must, payloadAgentID, req.Filters.AgentID)
	must = appendKeyword(must, payloadConversationID, req.Filters.ConversationID)
	search := &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         req.Vector,
		Limit:          uint64(req.TopK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(must) > 0 {
		search.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]registryvector.SearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		r, err := resultFromPoint(pt)
		if err != nil {
			log.Warn("qdrant: skipping unreadable point", "id", pt.GetId().GetUuid(), "err", err)
			continue
		}
		results = append(results, r)
	}
	registryvector.SortResults(results)
	return results, nil
}

func resultFromPoint(pt *pb.ScoredPoint) (registryvector.SearchResult, error) {
	var r registryvector.SearchResult
	id, err := uuid.Parse(pt.GetId().GetUuid())
	if err != nil {
		return r, err
	}
	payload := pt.GetPayload()
	r.ID = id
	r.Text = payload[payloadText].GetStringValue()
	r.UserID = payload[payloadUserID].GetStringValue()
	r.AgentID = payload[payloadAgentID].GetStringValue()
	r.ConversationID = payload[payloadConversationID].GetStringValue()
	r.Meta = map[string]any{}
	if raw := payload[payloadMeta].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Meta); err != nil {
			return r, err
		}
	}
	if ts := payload[payloadCreatedAt].GetStringValue(); ts != "" {
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return r, err
		}
	}
	r.Score = float64(pt.GetScore())
	return r, nil
}

func appendKeyword(must []*pb.Condition, key, value string) []*pb.Condition {
	if value == "" {
		return must
	}
	return append(must, &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	})
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func setIfPresent(payload map[string]*pb.Value, key, value string) {
	if value != "" {
		payload[key] = stringValue(value)
	}
}

func newUint64(v uint64) *uint64 {
	return &v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

// effectiveCollectionName defaults to semantic_items_<dimension> so stores
// with different embedders never share a collection.
func effectiveCollectionName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.QdrantCollectionName); name != "" {
		return name
	}
	return fmt.Sprintf("semantic_items_%d", cfg.VectorDimension)
}

var _ registryvector.VectorStore = (*QdrantStore)(nil)
