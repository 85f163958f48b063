// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package row

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns the full hex-encoded SHA-256 over the dataset's canonical
// JSON serialization (field order preserved via []any tuples, since Go's
// encoding/json would otherwise sort map keys). Stable across identical
// row sequences with identical field orderings; changes under any row
// addition, removal, or field mutation (spec.md §8).
func Hash(d Dataset) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, r := range d {
		tuple := make([][2]any, 0, r.Len())
		for _, name := range r.Names() {
			tuple = append(tuple, [2]any{name, r.Get(name).AsAny()})
		}
		_ = enc.Encode(tuple)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShortHash truncates Hash to n hex characters, as used by the JIT-skip
// accounting and the persisted hash store (spec.md §6: 16-hex-char
// truncated SHA-256).
func ShortHash(d Dataset, n int) string {
	full := Hash(d)
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}
