package handlers

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/isaqe-io/isaqe-engine/pkg/database"
	"github.com/isaqe-io/isaqe-engine/pkg/pipeline"
)

// mockConn is a pooled connection whose queries are never expected to run in
// handler tests; the pipeline behind it is mocked too.
type mockConn struct {
	released bool
}

func (m *mockConn) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	panic("handler tests must not query the database")
}

func (m *mockConn) Release() {
	m.released = true
}

// mockPool hands out a single mockConn, or fails.
type mockPool struct {
	conn *mockConn
	err  error
}

func (m *mockPool) Acquire(_ context.Context) (database.Conn, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.conn == nil {
		m.conn = &mockConn{}
	}
	return m.conn, nil
}

// mockPipeline is a configurable pipeline for handler tests. It records the
// request and connection it was handed.
type mockPipeline struct {
	resp *pipeline.Response
	err  error

	handled bool
	gotReq  pipeline.Request
	gotConn database.Querier
}

func (m *mockPipeline) Handle(_ context.Context, conn database.Querier, req pipeline.Request) (*pipeline.Response, error) {
	m.handled = true
	m.gotReq = req
	m.gotConn = conn
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}
