// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mocks holds a hand-maintained gomock-compatible double for
// secrets.OnePasswordClient. Kept by hand rather than mockgen-generated
// since the single method rarely changes shape.
package mocks

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockOnePasswordClient is a mock of the OnePasswordClient interface.
type MockOnePasswordClient struct {
	ctrl     *gomock.Controller
	recorder *MockOnePasswordClientMockRecorder
}

// MockOnePasswordClientMockRecorder is the mock recorder for MockOnePasswordClient.
type MockOnePasswordClientMockRecorder struct {
	mock *MockOnePasswordClient
}

// NewMockOnePasswordClient creates a new mock instance.
func NewMockOnePasswordClient(ctrl *gomock.Controller) *MockOnePasswordClient {
	mock := &MockOnePasswordClient{ctrl: ctrl}
	mock.recorder = &MockOnePasswordClientMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockOnePasswordClient) EXPECT() *MockOnePasswordClientMockRecorder {
	return m.recorder
}

// Resolve mocks base method.
func (m *MockOnePasswordClient) Resolve(ctx context.Context, secretPath string) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Resolve", ctx, secretPath)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Resolve indicates an expected call of Resolve.
func (mr *MockOnePasswordClientMockRecorder) Resolve(ctx, secretPath any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Resolve",
		reflect.TypeOf((*MockOnePasswordClient)(nil).Resolve), ctx, secretPath)
}
