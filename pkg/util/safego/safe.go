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
	"context"
	"runtime"

	runtimeutil "k8s.io/apimachinery/pkg/util/runtime"

	"github.com/deskshell/telemetryd/pkg/log"
)

func init() {
	runtimeutil.ReallyCrash = false
	runtimeutil.PanicHandlers = []func(context.Context, any){logPanic}
}

func logPanic(_ context.Context, r any) {
	const size = 64 << 10
	stacktrace := make([]byte, size)
	stacktrace = stacktrace[:runtime.Stack(stacktrace, false)]
	if _, ok := r.(string); ok {
		log.Error("Observed a panic: %s\n%s", r, stacktrace)
	} else {
		log.Error("Observed a panic: %#v (%v)\n%s", r, r, stacktrace)
	}
}

// Go runs f on a new goroutine; a panic is logged instead of crashing the process.
func Go(f func()) {
	go func() {
		defer runtimeutil.HandleCrash()

		f()
	}()
}

// GoWithRecover is Go with an extra hook that receives the recovered value,
// letting the owner turn a panic into an error of its own.
func GoWithRecover(f func(), onPanic func(r any)) {
	go func() {
		defer runtimeutil.HandleCrash(onPanic)

		f()
	}()
}
