package network

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch 向量长度与层大小不一致
	ErrDimensionMismatch = errors.New("维度不匹配")
	// ErrCorruptFormat 持久化文本缺少字段或无法解析
	ErrCorruptFormat = errors.New("网络文件格式损坏")
	// ErrUnknownActivation 无法识别的激活函数标签
	ErrUnknownActivation = errors.New("无法构建激活函数")
	// ErrUnknownLoss 无法识别的损失函数标签
	ErrUnknownLoss = errors.New("无法构建损失函数")
	// ErrInvalidTopology 层之间的大小关系不成立
	ErrInvalidTopology = errors.New("网络拓扑无效")
)

// DimensionError 记录发生维度不匹配的操作以及期望/实际长度
type DimensionError struct {
	Op   string
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: 期望长度 %d, 实际长度 %d", e.Op, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error {
	return ErrDimensionMismatch
}

func checkLen(op string, want, got int) error {
	if want != got {
		return &DimensionError{Op: op, Want: want, Got: got}
	}
	return nil
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptFormat, fmt.Sprintf(format, args...))
}
