package mocks

import (
	"context"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/stretchr/testify/mock"
)

type Conn struct {
	mock.Mock
}

var _ store.Conn = (*Conn)(nil)

func (c *Conn) Prepare(ctx context.Context, sql string) (store.Stmt, error) {
	args := c.Called(ctx, sql)
	s := args.Get(0)
	e := args.Error(1)
	if s == nil {
		return nil, e
	}
	return s.(store.Stmt), e
}

func (c *Conn) Begin(ctx context.Context) error {
	args := c.Called(ctx)
	return args.Error(0)
}

func (c *Conn) Commit(ctx context.Context) error {
	args := c.Called(ctx)
	return args.Error(0)
}

func (c *Conn) Rollback(ctx context.Context) error {
	args := c.Called(ctx)
	return args.Error(0)
}

func (c *Conn) Close() error {
	args := c.Called()
	return args.Error(0)
}

type Stmt struct {
	mock.Mock
}

var _ store.Stmt = (*Stmt)(nil)

func (s *Stmt) Exec(ctx context.Context, params []store.Value) (store.Result, error) {
	args := s.Called(ctx, params)
	return args.Get(0).(store.Result), args.Error(1)
}

func (s *Stmt) Query(ctx context.Context, params []store.Value) ([]store.Record, error) {
	args := s.Called(ctx, params)
	r := args.Get(0)
	e := args.Error(1)
	if r == nil {
		return nil, e
	}
	return r.([]store.Record), e
}

func (s *Stmt) Finalize() error {
	args := s.Called()
	return args.Error(0)
}
