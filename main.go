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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/deskshell/telemetryd/pkg/flag"
	"github.com/deskshell/telemetryd/pkg/history"
	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/provider"
	"github.com/deskshell/telemetryd/pkg/runtime"
	"github.com/deskshell/telemetryd/pkg/sampler"
	"github.com/deskshell/telemetryd/pkg/telemetry"
	"github.com/deskshell/telemetryd/pkg/util/safego"
	"github.com/deskshell/telemetryd/pkg/web"
	"github.com/deskshell/telemetryd/pkg/web/controller"
)

// main starts either the telemetry server or, with --worker, a worker
// answering requests on stdin/stdout.
func main() {
	flag.InitFlags()

	log.SetLevel(flag.ServerLogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flag.Worker {
		code := runWorker(ctx)
		stop()
		log.Sync()
		os.Exit(code)
	}
	runServer(ctx)
}

func samplerOptions() []sampler.Option {
	return []sampler.Option{
		sampler.WithThrottleWindow(flag.ThrottleWindow),
		sampler.WithExcludePatterns(flag.ExcludePatterns()),
	}
}

// runWorker keeps stdout for protocol messages only.
func runWorker(ctx context.Context) int {
	if err := log.SetOutput("stderr"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to redirect worker logs: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := sampler.New(provider.NewSystem(flag.DiskPath), samplerOptions()...)
	safego.Go(func() { s.Run(ctx) })

	if err := runtime.Serve(ctx, os.Stdin, os.Stdout, runtime.NewHandler(s)); err != nil {
		log.Error("worker stopped: %v", err)
		return 1
	}
	return 0
}

func newRuntime() (runtime.Runtime, error) {
	switch flag.WorkerMode {
	case "local":
		return runtime.NewLocal(provider.NewSystem(flag.DiskPath), samplerOptions()...), nil
	case "process":
		command := strings.Fields(flag.WorkerCommand)
		if len(command) == 0 {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("resolve worker executable: %w", err)
			}
			command = []string{
				exe,
				runtime.WorkerFlag,
				fmt.Sprintf("--log-level=%d", flag.ServerLogLevel),
				"--disk-path=" + flag.DiskPath,
				"--throttle-window=" + flag.ThrottleWindow.String(),
				"--exclude-processes=" + flag.ExcludeProcesses,
			}
		}
		return runtime.NewProcess(runtime.ProcessConfig{Command: command}), nil
	default:
		return nil, fmt.Errorf("unknown worker mode %q", flag.WorkerMode)
	}
}

func runServer(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt, err := newRuntime()
	if err != nil {
		log.Error("failed to create worker runtime: %v", err)
		os.Exit(1)
	}

	client := telemetry.New(rt,
		telemetry.WithInitTimeout(flag.InitTimeout),
		telemetry.WithRequestTimeout(flag.RequestTimeout),
	)
	defer client.Destroy()

	var sinks []history.Sink
	if flag.MySQLDSN != "" {
		sink, err := history.NewMySQLSink(ctx, flag.MySQLDSN)
		if err != nil {
			log.Error("failed to open mysql sink, samples stay in memory only: %v", err)
		} else {
			defer sink.Close()
			sinks = append(sinks, sink)
		}
	}

	recorder := history.NewRecorder(client, history.NewCollector(flag.HistorySize), flag.PollInterval, sinks...)
	recorderDone := make(chan struct{})
	safego.Go(func() {
		defer close(recorderDone)
		recorder.Run(ctx)
	})

	engine := web.NewRouter(flag.ServerAccessToken, controller.Deps{
		Telemetry: client,
		History:   recorder,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", flag.ServerPort),
		Handler: engine,
	}

	serveErr := make(chan error, 1)
	safego.Go(func() {
		log.Info("telemetryd listening on %s", server.Addr)
		serveErr <- server.ListenAndServe()
	})

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start telemetry server: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutting down telemetry server")
	}

	// stopping the recorder closes its subscribers, which ends open streams
	cancel()
	<-recorderDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), flag.ApiGracefulShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed: %v", err)
	}
}
