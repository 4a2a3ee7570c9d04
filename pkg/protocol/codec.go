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

package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// Encoder writes one JSON document per line. Safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}

// MalformedError reports a line that is not a valid message. The decoder
// stays usable and the next call reads the following line.
type MalformedError struct {
	// ID is recovered from the line when possible so the sender can be answered.
	ID  string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Decoder reads newline-delimited JSON documents from a stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) DecodeRequest() (*Request, error) {
	var req Request
	if err := d.decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (d *Decoder) DecodeResponse() (*Response, error) {
	var resp Response
	if err := d.decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (d *Decoder) decode(v any) error {
	for {
		line, err := d.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return err
			}
			continue
		}
		if uerr := json.Unmarshal(line, v); uerr != nil {
			var head struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(line, &head)
			return &MalformedError{ID: head.ID, Err: uerr}
		}
		return nil
	}
}

// Unmarshal decodes a response payload.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
