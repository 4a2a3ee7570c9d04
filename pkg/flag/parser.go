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

package flag

import (
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/deskshell/telemetryd/pkg/log"
)

const (
	accessTokenEnv             = "TELEMETRY_ACCESS_TOKEN"
	workerModeEnv              = "TELEMETRY_WORKER_MODE"
	diskPathEnv                = "TELEMETRY_DISK_PATH"
	mysqlDSNEnv                = "TELEMETRY_MYSQL_DSN"
	pollIntervalEnv            = "TELEMETRY_POLL_INTERVAL"
	gracefulShutdownTimeoutEnv = "TELEMETRY_API_GRACE_SHUTDOWN"
)

// settings mirrors the parsed flags for validation.
type settings struct {
	ServerPort       int           `validate:"gte=1,lte=65535"`
	ServerLogLevel   int           `validate:"gte=0,lte=7"`
	WorkerMode       string        `validate:"oneof=local process"`
	DiskPath         string        `validate:"required"`
	ThrottleWindow   time.Duration `validate:"gte=0s"`
	InitTimeout      time.Duration `validate:"gt=0s"`
	RequestTimeout   time.Duration `validate:"gt=0s"`
	PollInterval     time.Duration `validate:"gte=100ms"`
	HistorySize      int           `validate:"gte=1"`
	GracefulShutdown time.Duration `validate:"gte=0s"`
}

// InitFlags registers CLI flags and env overrides.
func InitFlags() {
	setDefaults()

	// First, set default values from environment variables
	if v := os.Getenv(accessTokenEnv); v != "" {
		ServerAccessToken = v
	}
	if v := os.Getenv(workerModeEnv); v != "" {
		WorkerMode = v
	}
	if v := os.Getenv(diskPathEnv); v != "" {
		DiskPath = v
	}
	if v := os.Getenv(mysqlDSNEnv); v != "" {
		MySQLDSN = v
	}
	if v := os.Getenv(pollIntervalEnv); v != "" {
		duration, err := time.ParseDuration(v)
		if err != nil {
			stdlog.Panicf("Failed to parse poll interval from env: %v", err)
		}
		PollInterval = duration
	}
	if v := os.Getenv(gracefulShutdownTimeoutEnv); v != "" {
		duration, err := time.ParseDuration(v)
		if err != nil {
			stdlog.Panicf("Failed to parse graceful shutdown timeout from env: %v", err)
		}
		ApiGracefulShutdownTimeout = duration
	}

	// Then define flags with current values as defaults
	flag.IntVar(&ServerPort, "port", ServerPort, "Server listening port (default: 44780)")
	flag.IntVar(&ServerLogLevel, "log-level", ServerLogLevel, "Server log level (0=LevelEmergency, 1=LevelAlert, 2=LevelCritical, 3=LevelError, 4=LevelWarning, 5=LevelNotice, 6=LevelInformational, 7=LevelDebug, default: 6)")
	flag.StringVar(&ServerAccessToken, "access-token", ServerAccessToken, "Server access token for API authentication")
	flag.DurationVar(&ApiGracefulShutdownTimeout, "graceful-shutdown-timeout", ApiGracefulShutdownTimeout, "API graceful shutdown timeout duration")
	flag.BoolVar(&Worker, "worker", Worker, "Run as a telemetry worker over stdin/stdout")
	flag.StringVar(&WorkerMode, "worker-mode", WorkerMode, "Where the worker runtime runs: local|process")
	flag.StringVar(&WorkerCommand, "worker-command", WorkerCommand, "Executable started for process mode (default: this binary)")
	flag.StringVar(&DiskPath, "disk-path", DiskPath, "Mount point whose disk usage is reported")
	flag.DurationVar(&ThrottleWindow, "throttle-window", ThrottleWindow, "Minimum interval between disk/GPU fetches")
	flag.DurationVar(&InitTimeout, "init-timeout", InitTimeout, "Worker readiness timeout")
	flag.DurationVar(&RequestTimeout, "request-timeout", RequestTimeout, "Per-request worker timeout")
	flag.DurationVar(&PollInterval, "poll-interval", PollInterval, "Usage history poll interval")
	flag.IntVar(&HistorySize, "history-size", HistorySize, "Number of usage samples kept in memory")
	flag.StringVar(&ExcludeProcesses, "exclude-processes", ExcludeProcesses, "Comma separated glob patterns of process names hidden from rankings")
	flag.StringVar(&MySQLDSN, "mysql-dsn", MySQLDSN, "MySQL DSN for persisting usage samples")

	// Parse flags - these will override environment variables if provided
	flag.Parse()

	if err := Validate(); err != nil {
		stdlog.Panicf("Invalid flags: %v", err)
	}

	if !Worker {
		log.Info("telemetry worker mode is: %s", WorkerMode)
		log.Info("telemetry throttle window is: %s", ThrottleWindow)
	}
}

func setDefaults() {
	ServerPort = 44780
	ServerLogLevel = 6
	ServerAccessToken = ""
	ApiGracefulShutdownTimeout = time.Second * 3
	Worker = false
	WorkerMode = "local"
	WorkerCommand = ""
	DiskPath = defaultDiskPath()
	ThrottleWindow = 10 * time.Second
	InitTimeout = 5 * time.Second
	RequestTimeout = 30 * time.Second
	PollInterval = 3 * time.Second
	HistorySize = 1200
	ExcludeProcesses = ""
	MySQLDSN = ""
}

// Validate checks the current flag values.
func Validate() error {
	s := settings{
		ServerPort:       ServerPort,
		ServerLogLevel:   ServerLogLevel,
		WorkerMode:       WorkerMode,
		DiskPath:         DiskPath,
		ThrottleWindow:   ThrottleWindow,
		InitTimeout:      InitTimeout,
		RequestTimeout:   RequestTimeout,
		PollInterval:     PollInterval,
		HistorySize:      HistorySize,
		GracefulShutdown: ApiGracefulShutdownTimeout,
	}
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("validate flags: %w", err)
	}
	return nil
}

// ExcludePatterns splits ExcludeProcesses into trimmed, non-empty patterns.
func ExcludePatterns() []string {
	var patterns []string
	for _, p := range strings.Split(ExcludeProcesses, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func defaultDiskPath() string {
	if os.PathSeparator == '\\' {
		return `C:\`
	}
	return "/"
}
