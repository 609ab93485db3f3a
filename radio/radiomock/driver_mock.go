/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package radiomock provides a go.uber.org/mock-based test double for
// radio.Driver, hand-written in the shape mockgen would produce from
// `mockgen -source=radio/driver.go -destination=radio/radiomock/driver_mock.go`,
// so sde's tests can assert exact CCA/Prepare/Transmit call sequences
// without a real or simulated transceiver.
package radiomock

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/meshsec/llsec/radio"
)

// MockDriver is a mock of the radio.Driver interface.
type MockDriver struct {
	ctrl     *gomock.Controller
	recorder *MockDriverMockRecorder
}

// MockDriverMockRecorder is the mock recorder for MockDriver.
type MockDriverMockRecorder struct {
	mock *MockDriver
}

// NewMockDriver creates a new mock instance.
func NewMockDriver(ctrl *gomock.Controller) *MockDriver {
	mock := &MockDriver{ctrl: ctrl}
	mock.recorder = &MockDriverMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockDriver) EXPECT() *MockDriverMockRecorder {
	return m.recorder
}

func (m *MockDriver) On() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "On")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) On() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "On", reflect.TypeOf((*MockDriver)(nil).On))
}

func (m *MockDriver) Off() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Off")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) Off() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Off", reflect.TypeOf((*MockDriver)(nil).Off))
}

func (m *MockDriver) ChannelClear() (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ChannelClear")
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDriverMockRecorder) ChannelClear() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ChannelClear", reflect.TypeOf((*MockDriver)(nil).ChannelClear))
}

func (m *MockDriver) EnableSHRSearch(enabled bool) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "EnableSHRSearch", enabled)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) EnableSHRSearch(enabled interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "EnableSHRSearch", reflect.TypeOf((*MockDriver)(nil).EnableSHRSearch), enabled)
}

func (m *MockDriver) Prepare(frame []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Prepare", frame)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) Prepare(frame interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Prepare", reflect.TypeOf((*MockDriver)(nil).Prepare), frame)
}

func (m *MockDriver) Transmit() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Transmit")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) Transmit() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Transmit", reflect.TypeOf((*MockDriver)(nil).Transmit))
}

func (m *MockDriver) ReadPartial(n int) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadPartial", n)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDriverMockRecorder) ReadPartial(n interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadPartial", reflect.TypeOf((*MockDriver)(nil).ReadPartial), n)
}

func (m *MockDriver) ReadRemainder() ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadRemainder")
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDriverMockRecorder) ReadRemainder() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadRemainder", reflect.TypeOf((*MockDriver)(nil).ReadRemainder))
}

func (m *MockDriver) FlushRX() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "FlushRX")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockDriverMockRecorder) FlushRX() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FlushRX", reflect.TypeOf((*MockDriver)(nil).FlushRX))
}

func (m *MockDriver) Events() <-chan radio.EventNotification {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Events")
	ret0, _ := ret[0].(<-chan radio.EventNotification)
	return ret0
}

func (mr *MockDriverMockRecorder) Events() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Events", reflect.TypeOf((*MockDriver)(nil).Events))
}

var _ radio.Driver = (*MockDriver)(nil)
