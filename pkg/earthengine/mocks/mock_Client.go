// Package mocks provides test doubles for the earthengine client.
package mocks

import (
	"context"
	"encoding/json"

	earthengine "github.com/sells-group/lakewatch/pkg/earthengine"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Compute provides a mock function with given fields: ctx, expr
func (_m *MockClient) Compute(ctx context.Context, expr earthengine.Expr) (json.RawMessage, error) {
	ret := _m.Called(ctx, expr)

	if len(ret) == 0 {
		panic("no return value specified for Compute")
	}

	var r0 json.RawMessage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, earthengine.Expr) (json.RawMessage, error)); ok {
		return rf(ctx, expr)
	}
	if rf, ok := ret.Get(0).(func(context.Context, earthengine.Expr) json.RawMessage); ok {
		r0 = rf(ctx, expr)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(json.RawMessage)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, earthengine.Expr) error); ok {
		r1 = rf(ctx, expr)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// CreateMap provides a mock function with given fields: ctx, expr, vis
func (_m *MockClient) CreateMap(ctx context.Context, expr earthengine.Expr, vis earthengine.Visualization) (*earthengine.MapID, error) {
	ret := _m.Called(ctx, expr, vis)

	if len(ret) == 0 {
		panic("no return value specified for CreateMap")
	}

	var r0 *earthengine.MapID
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, earthengine.Expr, earthengine.Visualization) (*earthengine.MapID, error)); ok {
		return rf(ctx, expr, vis)
	}
	if rf, ok := ret.Get(0).(func(context.Context, earthengine.Expr, earthengine.Visualization) *earthengine.MapID); ok {
		r0 = rf(ctx, expr, vis)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*earthengine.MapID)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, earthengine.Expr, earthengine.Visualization) error); ok {
		r1 = rf(ctx, expr, vis)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// FetchTile provides a mock function with given fields: ctx, mapName, z, x, y
func (_m *MockClient) FetchTile(ctx context.Context, mapName string, z int, x int, y int) ([]byte, string, error) {
	ret := _m.Called(ctx, mapName, z, x, y)

	if len(ret) == 0 {
		panic("no return value specified for FetchTile")
	}

	var r0 []byte
	var r1 string
	var r2 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int, int, int) ([]byte, string, error)); ok {
		return rf(ctx, mapName, z, x, y)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, int, int, int) []byte); ok {
		r0 = rf(ctx, mapName, z, x, y)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]byte)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int, int, int) string); ok {
		r1 = rf(ctx, mapName, z, x, y)
	} else {
		r1 = ret.Get(1).(string)
	}

	if rf, ok := ret.Get(2).(func(context.Context, string, int, int, int) error); ok {
		r2 = rf(ctx, mapName, z, x, y)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}

// Ping provides a mock function with given fields: ctx
func (_m *MockClient) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Ping")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
