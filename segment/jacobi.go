// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package segment

import "math"

// maxJacobiSweeps bounds the cyclic Jacobi iteration; a symmetric 3x3
// matrix converges in well under this many sweeps in practice, and a
// matrix that hasn't converged by then is treated as a numerical failure
// rather than spun on forever.
const maxJacobiSweeps = 50

// jacobiEigen computes the eigenvalues and eigenvectors of a real
// symmetric 3x3 matrix a by cyclic Jacobi rotation, in the manner of the
// classic Numerical Recipes jacobi routine. Returns ok=false if the
// off-diagonal sum failed to vanish within maxJacobiSweeps sweeps.
//
// On success, eigvals is sorted descending and eigvecs' columns are the
// corresponding unit eigenvectors, each sign-canonicalized so that a
// majority of its three components are non-negative.
func jacobiEigen(a [3][3]float64) (eigvals [3]float64, eigvecs [3][3]float64, ok bool) {
	v := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	var b, d, z [3]float64
	for i := 0; i < 3; i++ {
		b[i] = a[i][i]
		d[i] = a[i][i]
		z[i] = 0
	}

	for sweep := 0; sweep < maxJacobiSweeps; sweep++ {
		sm := math.Abs(a[0][1]) + math.Abs(a[0][2]) + math.Abs(a[1][2])
		if sm == 0 {
			return sortEigen(d, v)
		}

		var tresh float64
		if sweep < 3 {
			tresh = 0.2 * sm / 9
		}

		for ip := 0; ip < 2; ip++ {
			for iq := ip + 1; iq < 3; iq++ {
				g := 100 * math.Abs(a[ip][iq])
				if sweep > 3 && math.Abs(d[ip])+g == math.Abs(d[ip]) && math.Abs(d[iq])+g == math.Abs(d[iq]) {
					a[ip][iq] = 0
					continue
				}
				if math.Abs(a[ip][iq]) <= tresh {
					continue
				}

				h := d[iq] - d[ip]
				var t float64
				if math.Abs(h)+g == math.Abs(h) {
					t = a[ip][iq] / h
				} else {
					theta := 0.5 * h / a[ip][iq]
					t = 1 / (math.Abs(theta) + math.Sqrt(1+theta*theta))
					if theta < 0 {
						t = -t
					}
				}

				c := 1 / math.Sqrt(1+t*t)
				s := t * c
				tau := s / (1 + c)
				h2 := t * a[ip][iq]

				z[ip] -= h2
				z[iq] += h2
				d[ip] -= h2
				d[iq] += h2
				a[ip][iq] = 0

				for j := 0; j < ip; j++ {
					rotate(&a, j, ip, j, iq, s, tau)
				}
				for j := ip + 1; j < iq; j++ {
					rotate(&a, ip, j, j, iq, s, tau)
				}
				for j := iq + 1; j < 3; j++ {
					rotate(&a, ip, j, iq, j, s, tau)
				}
				for j := 0; j < 3; j++ {
					rotate(&v, j, ip, j, iq, s, tau)
				}
			}
		}

		for ip := 0; ip < 3; ip++ {
			b[ip] += z[ip]
			d[ip] = b[ip]
			z[ip] = 0
		}
	}

	return eigvals, eigvecs, false
}

// rotate applies one Jacobi rotation to the pair of entries a[i][j] and
// a[k][l], the generic ROTATE step shared by the matrix update and the
// eigenvector accumulation.
func rotate(a *[3][3]float64, i, j, k, l int, s, tau float64) {
	g := a[i][j]
	h := a[k][l]
	a[i][j] = g - s*(h+g*tau)
	a[k][l] = h + s*(g-h*tau)
}

// sortEigen sorts the eigenpairs (d, v) by descending eigenvalue and
// sign-canonicalizes each eigenvector so that at least two of its three
// components are non-negative.
func sortEigen(d [3]float64, v [3][3]float64) (eigvals [3]float64, eigvecs [3][3]float64, ok bool) {
	order := []int{0, 1, 2}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if d[order[j]] > d[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	for col, src := range order {
		eigvals[col] = d[src]

		nonneg := 0
		for row := 0; row < 3; row++ {
			if v[row][src] >= 0 {
				nonneg++
			}
		}
		sign := 1.0
		if nonneg < 2 {
			sign = -1.0
		}
		for row := 0; row < 3; row++ {
			eigvecs[row][col] = sign * v[row][src]
		}
	}

	return eigvals, eigvecs, true
}
