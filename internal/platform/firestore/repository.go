package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

const deleteBatchSize = 400

// Document is a decoded snapshot together with its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder converts a value into the payload stored in Firestore.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder converts a snapshot back into a value.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder narrows a collection query.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository runs typed reads and bulk writes against one collection.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository binds encode and decode to collection. A nil decode falls back to DataTo.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = func(_ context.Context, value T) (any, error) { return value, nil }
	}
	if decode == nil {
		decode = func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
			var value T
			err := snap.DataTo(&value)
			return value, err
		}
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Get reads one document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	if strings.TrimSpace(id) == "" {
		return Document[T]{}, WrapError(r.op("get"), errors.New("firestore: document id is required"))
	}
	_, coll, err := r.open(ctx, "get")
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.document(ctx, snap)
}

// Query returns every document matched by build, or the whole collection when build is nil.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	_, coll, err := r.open(ctx, "query")
	if err != nil {
		return nil, err
	}
	iter := r.query(coll, build).Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := r.document(ctx, snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Count runs a server-side count aggregation.
func (r *BaseRepository[T]) Count(ctx context.Context, build QueryBuilder) (int, error) {
	_, coll, err := r.open(ctx, "count")
	if err != nil {
		return 0, err
	}
	query := r.query(coll, build)
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, WrapError(r.op("count"), err)
	}
	value, ok := results["total"].(*firestorepb.Value)
	if !ok {
		return 0, WrapError(r.op("count"), fmt.Errorf("firestore: unexpected count result %T", results["total"]))
	}
	return int(value.GetIntegerValue()), nil
}

// Existing returns the subset of ids with a stored document. Blank and repeated ids are ignored.
func (r *BaseRepository[T]) Existing(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	var coll *firestore.CollectionRef
	var client *firestore.Client
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		if coll == nil {
			var err error
			if client, coll, err = r.open(ctx, "get_all"); err != nil {
				return nil, err
			}
		}
		refs = append(refs, coll.Doc(id))
	}
	if len(refs) == 0 {
		return found, nil
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(r.op("get_all"), err)
	}
	for _, snap := range snaps {
		if snap != nil && snap.Exists() {
			found[snap.Ref.ID] = struct{}{}
		}
	}
	return found, nil
}

// CreateAll creates one document per value. A failed create is reported through the
// returned error without stopping the other writes; the count covers successful creates.
func (r *BaseRepository[T]) CreateAll(ctx context.Context, ids []string, values []T) (int, error) {
	if len(ids) != len(values) {
		return 0, fmt.Errorf("firestore: %d ids for %d values", len(ids), len(values))
	}
	if len(values) == 0 {
		return 0, nil
	}
	client, coll, err := r.open(ctx, "create")
	if err != nil {
		return 0, err
	}

	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(values))
	for i, value := range values {
		payload, err := r.encode(ctx, value)
		if err == nil {
			var job *firestore.BulkWriterJob
			if job, err = writer.Create(coll.Doc(ids[i]), payload); err == nil {
				jobs = append(jobs, job)
				continue
			}
			err = WrapError(r.op("create"), err)
		} else {
			err = fmt.Errorf("firestore: encode %s: %w", ids[i], err)
		}
		writer.End()
		return 0, err
	}
	writer.End()

	var created int
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		created++
	}
	if len(errs) > 0 {
		return created, WrapError(r.op("create"), errs[0])
	}
	return created, nil
}

// DeleteAll empties the collection in batches of deleteBatchSize.
func (r *BaseRepository[T]) DeleteAll(ctx context.Context) (int, error) {
	client, coll, err := r.open(ctx, "delete_all")
	if err != nil {
		return 0, err
	}
	total := 0
	for {
		n, err := r.deleteBatch(ctx, client, coll)
		total += n
		if err != nil {
			return total, WrapError(r.op("delete_all"), err)
		}
		if n < deleteBatchSize {
			return total, nil
		}
	}
}

func (r *BaseRepository[T]) deleteBatch(ctx context.Context, client *firestore.Client, coll *firestore.CollectionRef) (int, error) {
	iter := coll.Limit(deleteBatchSize).Select().Documents(ctx)
	defer iter.Stop()
	writer := client.BulkWriter(ctx)
	defer writer.End()

	n := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if _, err := writer.Delete(snap.Ref); err != nil {
			return n, err
		}
		n++
	}
}

func (r *BaseRepository[T]) document(ctx context.Context, snap *firestore.DocumentSnapshot) (Document[T], error) {
	value, err := r.decode(ctx, snap)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: value, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}

func (r *BaseRepository[T]) query(coll *firestore.CollectionRef, build QueryBuilder) firestore.Query {
	if build == nil {
		return coll.Query
	}
	return build(coll.Query)
}

// open resolves the client and collection for action.
func (r *BaseRepository[T]) open(ctx context.Context, action string) (*firestore.Client, *firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, nil, WrapError(r.op(action), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, nil, WrapError(r.op(action), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) op(action string) string {
	if r == nil || r.collection == "" {
		return "firestore." + action
	}
	return r.collection + "." + action
}
