package main

import (
	"math"
	"sort"
)

// CalculatePercentile returns the nth percentile of the finite values in latencies.
// Large inputs go through quickselect instead of a full sort.
func CalculatePercentile(latencies []float64, percentile float64) float64 {
	data := finiteCopy(latencies)
	if len(data) == 0 {
		return 0
	}

	if len(data) <= 1000 {
		sort.Float64s(data)
		return data[percentileIndex(len(data), percentile)]
	}
	return quickSelect(data, percentileIndex(len(data), percentile))
}

// CalculateMultiplePercentiles reads every requested percentile from one
// sorted copy, or selects each one separately for large inputs
func CalculateMultiplePercentiles(latencies []float64, percentiles []float64) map[float64]float64 {
	result := make(map[float64]float64, len(percentiles))

	data := finiteCopy(latencies)
	if len(data) == 0 {
		for _, p := range percentiles {
			result[p] = 0
		}
		return result
	}

	if len(data) > 1000 {
		for _, p := range percentiles {
			result[p] = CalculatePercentile(data, p)
		}
		return result
	}

	sort.Float64s(data)
	for _, p := range percentiles {
		result[p] = data[percentileIndex(len(data), p)]
	}
	return result
}

// finiteCopy drops NaN and infinities, which carry no ordering information
func finiteCopy(latencies []float64) []float64 {
	out := make([]float64, 0, len(latencies))
	for _, v := range latencies {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func percentileIndex(n int, percentile float64) int {
	idx := int(float64(n-1) * (percentile / 100.0))
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// quickSelect finds the k-th smallest element in place
func quickSelect(arr []float64, k int) float64 {
	left := 0
	right := len(arr) - 1

	for {
		if left == right {
			return arr[left]
		}

		pivotIndex := partition(arr, left, right)

		if k == pivotIndex {
			return arr[k]
		} else if k < pivotIndex {
			right = pivotIndex - 1
		} else {
			left = pivotIndex + 1
		}
	}
}

// partition moves the middle element to its sorted position and returns it
func partition(arr []float64, left, right int) int {
	pivotIndex := left + (right-left)/2
	pivot := arr[pivotIndex]

	arr[pivotIndex], arr[right] = arr[right], arr[pivotIndex]
	storeIndex := left

	for i := left; i < right; i++ {
		if arr[i] < pivot {
			arr[storeIndex], arr[i] = arr[i], arr[storeIndex]
			storeIndex++
		}
	}

	arr[storeIndex], arr[right] = arr[right], arr[storeIndex]
	return storeIndex
}
