package network

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
该文件包含神经网络层的封装、该层的前向传播以及反向传播
每一层保存的是“出边”权重：Weights[i][j] 连接本层第 i 个神经元与下一层第 j 个神经元
*/

// Layer 全连接层
type Layer struct {
	Size     int
	NextSize int
	Biases   *mat.VecDense // 偏置向量，长度为Size
	Weights  *mat.Dense    // 出边权重矩阵，大小为Size*NextSize；终端层(NextSize==0)为nil
	Values   *mat.VecDense // 最近一次前向传播的激活值
	Deltas   *mat.VecDense // 最近一次反向传播的梯度

	activationKind ActivationKind
	activation     ActivationFunction
	lossKind       LossKind
	loss           LossFunction
}

// LayerConfig 随机初始化一个层所需的配置
type LayerConfig struct {
	Size       int
	NextSize   int
	Activation ActivationKind
	Loss       LossKind
	WeightDist distuv.Rander
	BiasDist   distuv.Rander
}

// NewLayerConfig 返回默认配置：Sigmoid、MSE，权重 N(0, 0.7)，偏置 N(0, 0.001)
// src 为 nil 时使用系统熵播种的随机源
func NewLayerConfig(size, nextSize int, src rand.Source) LayerConfig {
	if src == nil {
		src = NewEntropySource()
	}
	return LayerConfig{
		Size:       size,
		NextSize:   nextSize,
		Activation: ActivationSigmoid,
		Loss:       LossMeanSquaredError,
		WeightDist: distuv.Normal{Mu: 0, Sigma: 0.7, Src: src},
		BiasDist:   distuv.Normal{Mu: 0, Sigma: 0.001, Src: src},
	}
}

// NewEntropySource 由系统熵播种的随机源，只应在最外层构造时使用
func NewEntropySource() rand.Source {
	return rand.NewPCG(rand.Uint64(), rand.Uint64())
}

// NewSeededSource 固定种子的随机源，用于可复现的初始化
func NewSeededSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// NewLayer 按分布随机初始化偏置和权重
func NewLayer(cfg LayerConfig) (*Layer, error) {
	if cfg.WeightDist == nil || cfg.BiasDist == nil {
		return nil, fmt.Errorf("%w: 缺少初始化分布", ErrInvalidTopology)
	}
	l, err := newEmptyLayer(cfg.Size, cfg.NextSize, cfg.Activation, cfg.Loss)
	if err != nil {
		return nil, err
	}
	for i := 0; i < l.Size; i++ {
		l.Biases.SetVec(i, cfg.BiasDist.Rand())
	}
	for i := 0; i < l.Size; i++ {
		for j := 0; j < l.NextSize; j++ {
			l.Weights.Set(i, j, cfg.WeightDist.Rand())
		}
	}
	return l, nil
}

// NewLayerWithParams 使用给定的偏置和按行展开的权重构建层（反序列化使用）
func NewLayerWithParams(size, nextSize int, biases, weights []float64, activation ActivationKind, loss LossKind) (*Layer, error) {
	if err := checkLen("偏置", size, len(biases)); err != nil {
		return nil, err
	}
	if err := checkLen("权重", size*nextSize, len(weights)); err != nil {
		return nil, err
	}
	l, err := newEmptyLayer(size, nextSize, activation, loss)
	if err != nil {
		return nil, err
	}
	l.Biases.CopyVec(mat.NewVecDense(size, biases))
	if nextSize > 0 {
		l.Weights.Copy(mat.NewDense(size, nextSize, weights))
	}
	return l, nil
}

func newEmptyLayer(size, nextSize int, activation ActivationKind, loss LossKind) (*Layer, error) {
	if size < 1 || nextSize < 0 {
		return nil, fmt.Errorf("%w: 层大小 %d, 下一层大小 %d", ErrInvalidTopology, size, nextSize)
	}
	act, err := NewActivationFunction(activation)
	if err != nil {
		return nil, err
	}
	lossFn, err := NewLossFunction(loss)
	if err != nil {
		return nil, err
	}
	l := &Layer{
		Size:           size,
		NextSize:       nextSize,
		Biases:         mat.NewVecDense(size, nil),
		Values:         mat.NewVecDense(size, nil),
		Deltas:         mat.NewVecDense(size, nil),
		activationKind: activation,
		activation:     act,
		lossKind:       loss,
		loss:           lossFn,
	}
	if nextSize > 0 {
		l.Weights = mat.NewDense(size, nextSize, nil)
	}
	return l, nil
}

// ActivationKind 返回该层激活函数标签
func (l *Layer) ActivationKind() ActivationKind { return l.activationKind }

// LossKind 返回该层损失函数标签
func (l *Layer) LossKind() LossKind { return l.lossKind }

// SetValues 直接写入激活值（输入层使用）
func (l *Layer) SetValues(input []float64) error {
	if err := checkLen("输入", l.Size, len(input)); err != nil {
		return err
	}
	l.Values.CopyVec(mat.NewVecDense(len(input), input))
	return nil
}

// Forward 该层的前向传播：values = f(prev.Weights^T * prev.Values + biases)
func (l *Layer) Forward(prev *Layer) error {
	if err := checkLen("前向传播", l.Size, prev.NextSize); err != nil {
		return err
	}
	var z mat.VecDense
	z.MulVec(prev.Weights.T(), prev.Values)
	z.AddVec(&z, l.Biases)
	l.Values.CopyVec(l.activation.Apply(&z))
	return nil
}

// Backward 隐藏层/输入层的反向传播，使用下一层刚计算出的 Deltas
func (l *Layer) Backward(next *Layer, learningRate float64) error {
	if err := l.computeDeltas(next); err != nil {
		return err
	}
	l.update(learningRate, next.Deltas)
	return nil
}

// BackwardTarget 输出层的反向传播，只更新偏置；指向输出层的权重由前一层更新
func (l *Layer) BackwardTarget(target []float64, learningRate float64) error {
	if err := l.computeOutputDeltas(target); err != nil {
		return err
	}
	l.update(learningRate, nil)
	return nil
}

func (l *Layer) computeDeltas(next *Layer) error {
	if err := checkLen("反向传播", l.NextSize, next.Size); err != nil {
		return err
	}
	// 上游梯度 = Weights * next.Deltas
	var upstream mat.VecDense
	upstream.MulVec(l.Weights, next.Deltas)
	l.Deltas.CopyVec(l.activation.Derivative(l.Values, &upstream))
	return nil
}

func (l *Layer) computeOutputDeltas(target []float64) error {
	if err := checkLen("目标", l.Size, len(target)); err != nil {
		return err
	}
	actual := mat.NewVecDense(len(target), target)
	l.Deltas.CopyVec(l.activation.Derivative(l.Values, l.loss.Gradient(actual, l.Values)))
	return nil
}

// update 学习率为0时不触碰参数，避免 0*Inf 写入 NaN
func (l *Layer) update(learningRate float64, nextDeltas *mat.VecDense) {
	if learningRate == 0 {
		return
	}
	l.Biases.AddScaledVec(l.Biases, -learningRate, l.Deltas)
	if l.Weights != nil && nextDeltas != nil {
		l.Weights.RankOne(l.Weights, -learningRate, l.Values, nextDeltas)
	}
}

// Output 返回激活值的拷贝
func (l *Layer) Output() []float64 {
	return vecData(l.Values)
}
