package repository

import (
	"context"
	"fmt"

	"go.miragespace.co/sqlrepo/query"
	"go.miragespace.co/sqlrepo/spec/store"

	"go.uber.org/zap"
)

// Executor runs statements for a repository. It is satisfied by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, sql string, params []store.Value) (store.Result, error)
	Query(ctx context.Context, sql string, params []store.Value) ([]store.Record, error)
	ExecuteBulk(ctx context.Context, stmts []query.Statement) ([]store.Result, error)
	Within(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config[T any] struct {
	Logger   *zap.Logger
	Executor Executor
	Schema   store.Schema
	// Codec defaults to RecordCodec when T is store.Record, and to a
	// StructCodec otherwise.
	Codec Codec[T]
}

func (c *Config[T]) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if c.Executor == nil {
		return fmt.Errorf("nil Executor is invalid")
	}
	if err := store.CheckIdentifier(c.Schema.Table); err != nil {
		return err
	}
	if !c.Schema.Has(store.IDColumn) {
		return fmt.Errorf("%w: schema of %s has no id column", store.ErrInvalidColumn, c.Schema.Table)
	}
	if c.Codec == nil {
		var zero T
		if _, ok := any(zero).(store.Record); ok {
			c.Codec = any(RecordCodec{}).(Codec[T])
		} else {
			codec, err := NewStructCodec[T](c.Schema)
			if err != nil {
				return err
			}
			c.Codec = codec
		}
	}
	return nil
}

// Repository exposes typed CRUD over a single table.
type Repository[T any] struct {
	logger *zap.Logger
	exec   Executor
	schema store.Schema
	codec  Codec[T]
}

func New[T any](cfg Config[T]) (*Repository[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Repository[T]{
		logger: cfg.Logger.With(zap.String("table", cfg.Schema.Table)),
		exec:   cfg.Executor,
		schema: cfg.Schema,
		codec:  cfg.Codec,
	}, nil
}

func (r *Repository[T]) Schema() store.Schema {
	return r.schema
}

// encode converts obj to a record of declared columns. An unset id is dropped
// so the engine assigns one.
func (r *Repository[T]) encode(obj T) (store.Record, error) {
	rec, err := r.codec.Encode(obj)
	if err != nil {
		return nil, err
	}
	if err := r.schema.CheckRecord(rec); err != nil {
		return nil, err
	}
	if v, ok := rec.Get(store.IDColumn); ok {
		if n, err := store.Normalize(v); err == nil && (n == nil || n == int64(0)) {
			rec = rec.Without(store.IDColumn)
		}
	}
	return rec, nil
}

func (r *Repository[T]) decodeAll(rows []store.Record) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		obj, err := r.codec.Decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (r *Repository[T]) notFound(id int64) error {
	return fmt.Errorf("%w: %s with id %d", store.ErrNotFound, r.schema.Table, id)
}

func (r *Repository[T]) find(ctx context.Context, id int64) (T, error) {
	var zero T

	sql, err := query.Find(r.schema.Table)
	if err != nil {
		return zero, err
	}
	rows, err := r.exec.Query(ctx, sql, []store.Value{id})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, r.notFound(id)
	}
	return r.codec.Decode(rows[0])
}

// Insert stores obj and returns the row as stored, including the assigned id.
func (r *Repository[T]) Insert(ctx context.Context, obj T) (T, error) {
	var stored T

	rec, err := r.encode(obj)
	if err != nil {
		return stored, err
	}
	stmt, err := query.Insert(r.schema.Table, rec)
	if err != nil {
		return stored, err
	}

	err = r.exec.Within(ctx, func(ctx context.Context) error {
		res, err := r.exec.Execute(ctx, stmt.SQL, stmt.Params)
		if err != nil {
			return err
		}
		stored, err = r.find(ctx, res.LastInsertID)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return stored, nil
}

// Update writes every column of obj to the row with its id. Zero affected
// rows is reported in the result, not as an error.
func (r *Repository[T]) Update(ctx context.Context, obj T) (store.Result, error) {
	rec, err := r.codec.Encode(obj)
	if err != nil {
		return store.Result{}, err
	}
	if err := r.schema.CheckRecord(rec); err != nil {
		return store.Result{}, err
	}
	if _, ok := rec.ID(); !ok {
		return store.Result{}, store.ErrMissingIdentifier
	}
	stmt, err := query.Update(r.schema.Table, rec)
	if err != nil {
		return store.Result{}, err
	}
	res, err := r.exec.Execute(ctx, stmt.SQL, stmt.Params)
	if err != nil {
		return store.Result{}, err
	}
	// meaningless for UPDATE
	res.LastInsertID = 0
	return res, nil
}

// BulkInsertOrReplace writes every object in one transaction. Either all
// rows are written or none are.
func (r *Repository[T]) BulkInsertOrReplace(ctx context.Context, objs []T) ([]store.Result, error) {
	if len(objs) == 0 {
		return []store.Result{}, nil
	}

	stmts := make([]query.Statement, len(objs))
	for i, obj := range objs {
		rec, err := r.encode(obj)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		stmts[i], err = query.InsertOrReplace(r.schema.Table, rec)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
	}

	res, err := r.exec.ExecuteBulk(ctx, stmts)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Bulk insert or replace completed", zap.Int("rows", len(res)))
	return res, nil
}

// Destroy deletes the row with id, failing with ErrNotFound when there is none.
func (r *Repository[T]) Destroy(ctx context.Context, id int64) (bool, error) {
	sql, err := query.Destroy(r.schema.Table)
	if err != nil {
		return false, err
	}
	res, err := r.exec.Execute(ctx, sql, []store.Value{id})
	if err != nil {
		return false, err
	}
	if res.RowsAffected == 0 {
		return false, r.notFound(id)
	}
	return true, nil
}

// DestroyAll deletes every row. An empty table is not an error.
func (r *Repository[T]) DestroyAll(ctx context.Context) (bool, error) {
	sql, err := query.DestroyAll(r.schema.Table)
	if err != nil {
		return false, err
	}
	res, err := r.exec.Execute(ctx, sql, nil)
	if err != nil {
		return false, err
	}
	r.logger.Debug("All rows destroyed", zap.Int64("rows", res.RowsAffected))
	return true, nil
}

func (r *Repository[T]) Find(ctx context.Context, id int64) (T, error) {
	return r.find(ctx, id)
}

// FindBy returns the first row, by id, matching every predicate.
func (r *Repository[T]) FindBy(ctx context.Context, where ...store.Predicate) (T, error) {
	var zero T

	rows, err := r.Query(ctx, store.QuerySpec{
		Where: where,
		Limit: store.Limit(1),
	})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%w: no %s matched", store.ErrNotFound, r.schema.Table)
	}
	return rows[0], nil
}

// Query returns the rows matching spec, possibly none.
func (r *Repository[T]) Query(ctx context.Context, spec store.QuerySpec) ([]T, error) {
	if err := r.schema.CheckQuery(spec); err != nil {
		return nil, err
	}
	sql, err := query.Query(r.schema.Table, spec)
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.Query(ctx, sql, query.Params(spec))
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows)
}

func (r *Repository[T]) Count(ctx context.Context, where ...store.Predicate) (int64, error) {
	if err := r.schema.CheckQuery(store.QuerySpec{Where: where}); err != nil {
		return 0, err
	}
	sql, err := query.Count(r.schema.Table, where)
	if err != nil {
		return 0, err
	}
	rows, err := r.exec.Query(ctx, sql, query.Params(store.QuerySpec{Where: where}))
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("count of %s returned %d rows", r.schema.Table, len(rows))
	}
	v, _ := rows[0].Get("count")
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: count of %s is %T", store.ErrTypeMismatch, r.schema.Table, v)
	}
	return n, nil
}
