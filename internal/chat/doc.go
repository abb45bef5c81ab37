// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs question/answer exchanges against the backend: it
// opens the SSE stream, relays events to the caller, and persists the
// completed exchange locally once the stream finishes.
//
// Nothing is written to the store for a cancelled or failed stream
// unless the caller explicitly commits the partial answer. Citation
// parsing happens at persist time so that re-rendering a cached answer
// never needs the network.
package chat
