// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package intutil holds small integer helpers used by the ref index for
// version arithmetic.
package intutil

import (
	"math/bits"
)

const MaxUint32 = 1<<32 - 1

// SafeAddU32 returns x+y and reports whether it overflowed uint32 — used by
// the ref index to guard next_version allocation.
func SafeAddU32(x, y uint32) (uint32, bool) {
	sum, carryOut := bits.Add32(x, y, 0)
	return sum, carryOut != 0
}
