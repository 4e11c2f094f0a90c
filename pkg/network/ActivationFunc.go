package network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

/*
该文件包含激活函数的标签、工厂以及各激活函数的实现
导数均以激活后的输出 y 作为输入，并直接乘上上游梯度
*/

// ActivationKind 激活函数标签，数值即网络文件中的 activation-function 字段
type ActivationKind int

const (
	ActivationInvalid ActivationKind = iota
	ActivationSigmoid
	ActivationTanh
	ActivationReLU
	ActivationLeakyReLU
	ActivationParametricReLU
	ActivationSoftmax
)

const (
	leakyReLUSlope      = 0.02
	parametricReLUSlope = 0.2
)

var activationNames = map[ActivationKind]string{
	ActivationSigmoid:        "sigmoid",
	ActivationTanh:           "tanh",
	ActivationReLU:           "relu",
	ActivationLeakyReLU:      "leaky-relu",
	ActivationParametricReLU: "parametric-relu",
	ActivationSoftmax:        "softmax",
}

func (k ActivationKind) String() string {
	if name, ok := activationNames[k]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", int(k))
}

// ParseActivationKind 根据名称解析激活函数标签（用于配置文件）
func ParseActivationKind(name string) (ActivationKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, v := range activationNames {
		if v == name {
			return k, nil
		}
	}
	return ActivationInvalid, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
}

// ActivationFunction 逐元素激活函数策略
type ActivationFunction interface {
	// Apply 返回激活后的新向量，不修改输入
	Apply(x *mat.VecDense) *mat.VecDense
	// Derivative 返回 局部导数(y) * 上游梯度
	Derivative(y, usGrad *mat.VecDense) *mat.VecDense
}

// NewActivationFunction 根据标签构建激活函数，未知标签返回错误
func NewActivationFunction(kind ActivationKind) (ActivationFunction, error) {
	switch kind {
	case ActivationSigmoid:
		return sigmoid{}, nil
	case ActivationTanh:
		return tanh{}, nil
	case ActivationReLU:
		return rectifier{slope: 0}, nil
	case ActivationLeakyReLU:
		return rectifier{slope: leakyReLUSlope}, nil
	case ActivationParametricReLU:
		return rectifier{slope: parametricReLUSlope}, nil
	case ActivationSoftmax:
		return softmax{}, nil
	default:
		return nil, fmt.Errorf("%w: 标签 %d", ErrUnknownActivation, int(kind))
	}
}

type sigmoid struct{}

func (sigmoid) Apply(x *mat.VecDense) *mat.VecDense {
	return mapVec(x, func(v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	})
}

func (sigmoid) Derivative(y, usGrad *mat.VecDense) *mat.VecDense {
	out := mapVec(y, func(v float64) float64 {
		return v * (1 - v)
	})
	out.MulElemVec(out, usGrad)
	return out
}

type tanh struct{}

func (tanh) Apply(x *mat.VecDense) *mat.VecDense {
	return mapVec(x, math.Tanh)
}

func (tanh) Derivative(y, usGrad *mat.VecDense) *mat.VecDense {
	out := mapVec(y, func(v float64) float64 {
		return 1 - v*v
	})
	out.MulElemVec(out, usGrad)
	return out
}

// rectifier 覆盖 ReLU / LeakyReLU / ParametricReLU，负半轴斜率固定（不参与学习）
type rectifier struct {
	slope float64
}

func (r rectifier) Apply(x *mat.VecDense) *mat.VecDense {
	return mapVec(x, func(v float64) float64 {
		if v > 0 {
			return v
		}
		return r.slope * v
	})
}

func (r rectifier) Derivative(y, usGrad *mat.VecDense) *mat.VecDense {
	out := mapVec(y, func(v float64) float64 {
		if v > 0 {
			return 1
		}
		return r.slope
	})
	out.MulElemVec(out, usGrad)
	return out
}

type softmax struct{}

// Apply 先减去最大值再取指数，结果与未做平移的公式相同但不会溢出
func (softmax) Apply(x *mat.VecDense) *mat.VecDense {
	data := vecData(x)
	maxVal := floats.Max(data)
	for i, v := range data {
		data[i] = math.Exp(v - maxVal)
	}
	floats.Scale(1/floats.Sum(data), data)
	return mat.NewVecDense(len(data), data)
}

// Derivative 返回 -y*(sum(y*g) - g)，只在上游为交叉熵时与真实雅可比一致
func (softmax) Derivative(y, usGrad *mat.VecDense) *mat.VecDense {
	s := mat.Dot(y, usGrad)
	out := mat.NewVecDense(y.Len(), nil)
	for i := 0; i < y.Len(); i++ {
		out.SetVec(i, -y.AtVec(i)*(s-usGrad.AtVec(i)))
	}
	return out
}

func mapVec(x *mat.VecDense, f func(float64) float64) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	for i := 0; i < x.Len(); i++ {
		out.SetVec(i, f(x.AtVec(i)))
	}
	return out
}

// vecData 复制向量内容为切片
func vecData(x mat.Vector) []float64 {
	data := make([]float64, x.Len())
	for i := range data {
		data[i] = x.AtVec(i)
	}
	return data
}
