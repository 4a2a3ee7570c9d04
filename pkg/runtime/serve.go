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

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/protocol"
	"github.com/deskshell/telemetryd/pkg/util/safego"
)

// Serve runs the worker side of the protocol. It announces readiness, then
// answers every request on its own goroutine.
//
// Serve returns nil once in reaches EOF (after in-flight requests are
// answered) or ctx is done. A panicking handler makes it return an error
// wrapping ErrWorkerPanic.
func Serve(ctx context.Context, in io.Reader, out io.Writer, h *Handler) error {
	enc := protocol.NewEncoder(out)
	if err := enc.Encode(protocol.Ready()); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	requests := make(chan *protocol.Request)
	readErr := make(chan error, 1)
	crashed := make(chan error, 1)

	dec := protocol.NewDecoder(in)
	safego.Go(func() {
		for {
			req, err := dec.DecodeRequest()
			if err != nil {
				var malformed *protocol.MalformedError
				if errors.As(err, &malformed) {
					log.Warn("worker: dropping malformed request: %v", malformed)
					reply(enc, protocol.Failure(malformed.ID, malformed.Error()))
					continue
				}
				readErr <- err
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	})

	for {
		select {
		case req := <-requests:
			wg.Add(1)
			// Done runs after the crash is recorded so a drain never misses it.
			safego.GoWithRecover(func() {
				reply(enc, h.Handle(ctx, req))
				wg.Done()
			}, func(r any) {
				select {
				case crashed <- fmt.Errorf("%w: %s: %v", ErrWorkerPanic, req.Action, r):
				default:
				}
				wg.Done()
			})
		case err := <-readErr:
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				wg.Wait()
				select {
				case err := <-crashed:
					return err
				default:
					return nil
				}
			}
			return fmt.Errorf("failed to read request: %w", err)
		case err := <-crashed:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func reply(enc *protocol.Encoder, resp *protocol.Response) {
	if err := enc.Encode(resp); err != nil {
		log.Warn("worker: failed to write response %s: %v", resp.ID, err)
	}
}
