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

package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/deskshell/telemetryd/pkg/log"
	"github.com/deskshell/telemetryd/pkg/model"
)

const createSamplesTable = `CREATE TABLE IF NOT EXISTS resource_usage_samples (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	ts BIGINT NOT NULL,
	cpu DOUBLE NOT NULL,
	mem_used DOUBLE NOT NULL,
	mem_total DOUBLE NOT NULL,
	mem_percent INT NOT NULL,
	disk_used DOUBLE NOT NULL,
	disk_total DOUBLE NOT NULL,
	disk_percent INT NOT NULL,
	gpu_percent INT NULL,
	gpu_mem_used DOUBLE NULL,
	gpu_mem_total DOUBLE NULL,
	INDEX idx_ts (ts)
)`

const insertSample = `INSERT INTO resource_usage_samples
	(ts, cpu, mem_used, mem_total, mem_percent, disk_used, disk_total, disk_percent, gpu_percent, gpu_mem_used, gpu_mem_total)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const writeTimeout = 5 * time.Second

// connectBackoff covers a database that comes up after the daemon.
var connectBackoff = wait.Backoff{
	Steps:    5,
	Duration: 500 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
}

// MySQLSink mirrors samples into the resource_usage_samples table.
type MySQLSink struct {
	db *sql.DB
}

var _ Sink = (*MySQLSink)(nil)

// NewMySQLSink connects to dsn and creates the samples table if missing.
func NewMySQLSink(ctx context.Context, dsn string) (*MySQLSink, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = writeTimeout
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}

	sink := newMySQLSink(sql.OpenDB(connector))
	if err := sink.init(ctx); err != nil {
		_ = sink.Close()
		return nil, err
	}
	log.Info("history: mirroring samples to mysql %s/%s", cfg.Addr, cfg.DBName)
	return sink, nil
}

func newMySQLSink(db *sql.DB) *MySQLSink {
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)
	return &MySQLSink{db: db}
}

func (s *MySQLSink) init(ctx context.Context) error {
	err := retry.OnError(connectBackoff, func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		log.Warn("history: mysql not reachable, retrying: %v", err)
		return true
	}, func() error {
		return s.db.PingContext(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to ping mysql: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createSamplesTable); err != nil {
		return fmt.Errorf("failed to create samples table: %w", err)
	}
	return nil
}

// Write inserts one sample.
func (s *MySQLSink) Write(ctx context.Context, u model.ResourceUsage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var gpuPercent sql.NullInt64
	var gpuMemUsed, gpuMemTotal sql.NullFloat64
	if u.GPU != nil {
		gpuPercent = sql.NullInt64{Int64: int64(u.GPU.Percent), Valid: true}
		if u.GPU.Memory != nil {
			gpuMemUsed = sql.NullFloat64{Float64: u.GPU.Memory.Used, Valid: true}
			gpuMemTotal = sql.NullFloat64{Float64: u.GPU.Memory.Total, Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, insertSample,
		u.Timestamp, u.CPU,
		u.Memory.Used, u.Memory.Total, u.Memory.Percent,
		u.Disk.Used, u.Disk.Total, u.Disk.Percent,
		gpuPercent, gpuMemUsed, gpuMemTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

func (s *MySQLSink) Close() error {
	return s.db.Close()
}
