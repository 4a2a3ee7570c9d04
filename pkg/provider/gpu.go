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

package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const nvidiaSMI = "nvidia-smi"

var nvidiaSMIArgs = []string{
	"--query-gpu=name,utilization.gpu,memory.used,memory.total",
	"--format=csv,noheader,nounits",
}

func (s *System) queryNvidiaSMI(ctx context.Context) (*GPUStat, error) {
	path, err := exec.LookPath(nvidiaSMI)
	if err != nil {
		// no NVIDIA tooling: the host exposes no GPU telemetry
		return nil, nil
	}

	out, err := exec.CommandContext(ctx, path, nvidiaSMIArgs...).Output()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi failed: %w", err)
	}
	return parseNvidiaSMI(string(out))
}

// parseNvidiaSMI reads the first controller from nvidia-smi csv output.
// Memory columns are MiB.
func parseNvidiaSMI(out string) (*GPUStat, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			return nil, fmt.Errorf("unexpected nvidia-smi line: %q", line)
		}
		util, err := parseFloat(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse utilization: %w", err)
		}
		// memory is optional on some controllers ("[N/A]")
		memUsed, _ := parseFloat(parts[2])
		memTotal, _ := parseFloat(parts[3])
		return &GPUStat{
			Name:        strings.TrimSpace(parts[0]),
			Utilization: util,
			MemUsed:     uint64(memUsed * 1024 * 1024),
			MemTotal:    uint64(memTotal * 1024 * 1024),
		}, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("nvidia-smi reported no controllers")
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}
