// Copyright 2024 C4GHFS Authors
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


// Package cache provides cache implementations for the c4ghfs VFS layer.
//
// Currently provides:
// - HeaderCache: TTL-based header length cache validated against file
//   identity, so unchanged containers are not re-parsed across listings
package cache

import "os"

// Disabled controls whether all caching mechanisms are disabled.
// Set via C4GHFS_CACHE=0 environment variable.
// When true:
// - HeaderCache.Get() always misses
// - HeaderCache.Set() is a no-op
//
// This is useful for testing and debugging to verify logic works correctly
// without caching.
var Disabled = os.Getenv("C4GHFS_CACHE") == "0"

// Invalidator is implemented by all caches that support full invalidation.
type Invalidator interface {
	// Invalidate clears all entries from the cache.
	Invalidate()
}
