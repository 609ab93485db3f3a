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

package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncWakeAndSendResult(t *testing.T) {
	s := New()
	s.IncWake("accepted")
	s.IncWake("accepted")
	s.IncWake("silence")
	s.IncSendResult("ok")

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap["wake.accepted"])
	assert.Equal(t, int64(1), snap["wake.silence"])
	assert.Equal(t, int64(1), snap["send.ok"])
}

func TestIncRejectedDoesNotDistinguishReason(t *testing.T) {
	s := New()
	s.IncRejected()
	s.IncRejected()
	s.IncRejected()

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap["rejected_total"])
}

func TestIncOTPCacheFull(t *testing.T) {
	s := New()
	s.IncOTPCacheFull()

	assert.Equal(t, int64(1), s.Snapshot()["otp_cache_full_total"])
}

func TestReset(t *testing.T) {
	s := New()
	s.IncWake("accepted")
	s.IncRejected()
	s.IncHandshake("hello-sent")
	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, int64(0), snap["rejected_total"])
	_, ok := snap["wake.accepted"]
	assert.False(t, ok)
}

func TestConcurrentIncrements(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncRejected()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), s.Snapshot()["rejected_total"])
}
