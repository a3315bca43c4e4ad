// Copyright 2026 The TradeArena Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package transport carries newline-delimited JSON-RPC messages to and from
// tool servers.
package transport

import (
	"context"
)

// Transport is a bidirectional message channel to one tool server.
type Transport interface {
	// Send writes one message.
	Send(ctx context.Context, message []byte) error

	// Receive blocks for the next message. io.EOF means the peer is gone.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the transport and any process behind it.
	Close() error
}
