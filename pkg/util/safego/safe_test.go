// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safego

import (
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("goroutine did not finish")
	}
}

func TestGoWithRecoverReportsValue(t *testing.T) {
	recovered := make(chan any, 1)
	GoWithRecover(func() {
		panic("sampler exploded")
	}, func(r any) {
		recovered <- r
	})

	select {
	case r := <-recovered:
		if r != "sampler exploded" {
			t.Fatalf("unexpected recovered value: %#v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("panic hook was not invoked")
	}
}

func TestGoWithRecoverSkipsHookOnSuccess(t *testing.T) {
	done := make(chan struct{})
	called := make(chan struct{}, 1)
	GoWithRecover(func() {
		close(done)
	}, func(any) {
		called <- struct{}{}
	})

	<-done
	select {
	case <-called:
		t.Fatalf("hook must not run without a panic")
	case <-time.After(50 * time.Millisecond):
	}
}
