package dataProcess

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

/*
该文件包含训练前的数据准备：打乱索引、按索引重排、按固定大小分批
均为纯函数，不持有共享状态
*/

var (
	// ErrLengthMismatch 数据与索引长度不一致
	ErrLengthMismatch = errors.New("数据与索引长度不一致")
	// ErrBatchSize 批次大小必须为正数
	ErrBatchSize = errors.New("批次大小必须为正数")
)

// GenerateShuffledIndices 返回 0..size-1 的随机排列，rng 为nil时使用系统熵播种
func GenerateShuffledIndices(size int, rng *rand.Rand) []int {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	return indices
}

// Reorder 返回 out[i] = src[indices[i]]
func Reorder[T any](src []T, indices []int) ([]T, error) {
	if len(src) != len(indices) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(src), len(indices))
	}
	out := make([]T, len(src))
	for i, idx := range indices {
		if idx < 0 || idx >= len(src) {
			return nil, fmt.Errorf("索引 %d 越界 [0, %d)", idx, len(src))
		}
		out[i] = src[idx]
	}
	return out, nil
}

// Batch 按 batchSize 切分，最后不足一个批次的样本被丢弃
func Batch[T any](origin []T, batchSize int) ([][]T, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBatchSize, batchSize)
	}
	n := len(origin) / batchSize
	batches := make([][]T, n)
	for i := range batches {
		batches[i] = origin[i*batchSize : (i+1)*batchSize : (i+1)*batchSize]
	}
	return batches, nil
}

// BatchShuffled 先按 indices 重排再分批
func BatchShuffled[T any](origin []T, batchSize int, indices []int) ([][]T, error) {
	shuffled, err := Reorder(origin, indices)
	if err != nil {
		return nil, err
	}
	return Batch(shuffled, batchSize)
}
