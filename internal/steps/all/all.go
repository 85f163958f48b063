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

// Package all registers every concrete step type into
// step.Default by importing each step package for its side-effecting
// init(). spec.md §9 "Registry & discovery" replaces the teacher's
// package-walking auto-discovery with explicit registration in a
// statically compiled host; this package is the one place that
// assembles the full set, so cmd/riverdag only needs a single blank
// import to get every step type available.
package all

import (
	_ "github.com/riverdag/riverdag/internal/steps/aggregate"
	_ "github.com/riverdag/riverdag/internal/steps/branch"
	_ "github.com/riverdag/riverdag/internal/steps/cache"
	_ "github.com/riverdag/riverdag/internal/steps/clean"
	_ "github.com/riverdag/riverdag/internal/steps/fetch"
	_ "github.com/riverdag/riverdag/internal/steps/file"
	_ "github.com/riverdag/riverdag/internal/steps/guard"
	_ "github.com/riverdag/riverdag/internal/steps/join"
	_ "github.com/riverdag/riverdag/internal/steps/load"
	_ "github.com/riverdag/riverdag/internal/steps/parallel"
	_ "github.com/riverdag/riverdag/internal/steps/scrape"
	_ "github.com/riverdag/riverdag/internal/steps/shell"
	_ "github.com/riverdag/riverdag/internal/steps/transform"
)
