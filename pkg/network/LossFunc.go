package network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LossKind 损失函数标签，数值即网络文件中的 loss-function 字段
type LossKind int

const (
	LossMeanSquaredError LossKind = iota
	LossCrossEntropy
)

// 防止log(0)
const minProbability = 1e-10

var lossNames = map[LossKind]string{
	LossMeanSquaredError: "mse",
	LossCrossEntropy:     "cross-entropy",
}

func (k LossKind) String() string {
	if name, ok := lossNames[k]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", int(k))
}

// ParseLossKind 根据名称解析损失函数标签
func ParseLossKind(name string) (LossKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, v := range lossNames {
		if v == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLoss, name)
}

// LossFunction 输出层损失策略
type LossFunction interface {
	// Gradient 损失对预测值的逐元素梯度
	Gradient(actual, predicted *mat.VecDense) *mat.VecDense
	// Loss 单个样本的损失值，仅用于训练监控
	Loss(actual, predicted *mat.VecDense) float64
}

// NewLossFunction 根据标签构建损失函数
func NewLossFunction(kind LossKind) (LossFunction, error) {
	switch kind {
	case LossMeanSquaredError:
		return meanSquaredError{}, nil
	case LossCrossEntropy:
		return crossEntropy{}, nil
	default:
		return nil, fmt.Errorf("%w: 标签 %d", ErrUnknownLoss, int(kind))
	}
}

type meanSquaredError struct{}

// Gradient 1/2*(p-a)^2 的梯度，系数并入学习率
func (meanSquaredError) Gradient(actual, predicted *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(predicted.Len(), nil)
	out.SubVec(predicted, actual)
	return out
}

func (meanSquaredError) Loss(actual, predicted *mat.VecDense) float64 {
	var diff mat.VecDense
	diff.SubVec(predicted, actual)
	return 0.5 * mat.Dot(&diff, &diff)
}

type crossEntropy struct{}

// Gradient 只对 one-hot 目标成立：目标为0的类别取 -1/(p-1)，否则取 -1/p
// p 被限制在 [1e-10, 1-1e-10]，避免饱和的 softmax 输出产生无穷大
func (crossEntropy) Gradient(actual, predicted *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(predicted.Len(), nil)
	for i := 0; i < predicted.Len(); i++ {
		p := math.Min(math.Max(predicted.AtVec(i), minProbability), 1-minProbability)
		if actual.AtVec(i) == 0 {
			out.SetVec(i, -1/(p-1))
		} else {
			out.SetVec(i, -1/p)
		}
	}
	return out
}

func (crossEntropy) Loss(actual, predicted *mat.VecDense) float64 {
	loss := 0.0
	for i := 0; i < predicted.Len(); i++ {
		p := math.Max(predicted.AtVec(i), minProbability)
		loss -= actual.AtVec(i) * math.Log(p)
	}
	return loss
}
