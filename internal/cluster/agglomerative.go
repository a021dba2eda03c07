// Package cluster groups embedding vectors by hierarchical agglomerative
// clustering.
package cluster

import (
	"math"

	"github.com/ppiankov/paperproof/internal/vector"
)

// Agglomerative clusters vectors with average linkage over cosine distance,
// merging the closest pair while its distance is below threshold. There is no
// fixed cluster count. Labels are dense and numbered in order of first
// appearance.
//
// Each merge rescans the full distance matrix, so the cost is O(n^3) time and
// O(n^2) memory in the number of vectors. That is fine for the few hundred
// signals one paper yields (300 vectors take well under a second) but grows
// quickly past a few thousand; callers clustering larger sets should batch
// them first.
func Agglomerative(vectors [][]float32, threshold float64) []int {
	n := len(vectors)
	if n == 0 {
		return []int{}
	}

	// dist[i][j] is the average-linkage distance between active clusters i and j
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := vector.CosineDistance(vectors[i], vectors[j])
			dist[i][j], dist[j][i] = d, d
		}
	}

	size := make([]int, n)
	parent := make([]int, n) // cluster id each point currently belongs to
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		parent[i] = i
		active[i] = true
	}

	for {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}
		if bi < 0 || best >= threshold {
			break
		}

		// Lance-Williams update for average linkage, merging bj into bi
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			d := (float64(size[bi])*dist[bi][k] + float64(size[bj])*dist[bj][k]) / float64(size[bi]+size[bj])
			dist[bi][k], dist[k][bi] = d, d
		}
		size[bi] += size[bj]
		active[bj] = false
		for p := range parent {
			if parent[p] == bj {
				parent[p] = bi
			}
		}
	}

	labels := make([]int, n)
	seen := make(map[int]int)
	for i, c := range parent {
		l, ok := seen[c]
		if !ok {
			l = len(seen)
			seen[c] = l
		}
		labels[i] = l
	}
	return labels
}

// Groups turns labels into member index lists, ordered by label
func Groups(labels []int) [][]int {
	var groups [][]int
	for i, l := range labels {
		for len(groups) <= l {
			groups = append(groups, nil)
		}
		groups[l] = append(groups[l], i)
	}
	return groups
}
