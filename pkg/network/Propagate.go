package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

/*
该文件包含了网络的前向传播和后向传播
此外还有一些辅助函数，例如准确度计算，预测，损失计算等
*/

// Train 对单个样本做一次前向和反向传播，返回本次更新之前的输出
// learningRate 为0时只重新计算 Deltas，不修改任何参数（推理）
func (nn *NeuronNetwork) Train(input, target []float64, learningRate float64) ([]float64, error) {
	if err := checkLen("目标", nn.OutputLayer.Size, len(target)); err != nil {
		return nil, err
	}
	output, err := nn.FeedForward(input)
	if err != nil {
		return nil, err
	}
	if err := nn.backPropagate(target, learningRate); err != nil {
		return nil, err
	}
	return output, nil
}

// FeedForward 整个网络的前向传播，只修改各层的 Values
func (nn *NeuronNetwork) FeedForward(input []float64) ([]float64, error) {
	if err := nn.InputLayer.SetValues(input); err != nil {
		return nil, err
	}
	prev := nn.InputLayer
	for _, layer := range nn.HiddenLayers {
		if err := layer.Forward(prev); err != nil {
			return nil, err
		}
		prev = layer
	}
	if err := nn.OutputLayer.Forward(prev); err != nil {
		return nil, err
	}
	return nn.OutputLayer.Output(), nil
}

// backPropagate 输出层 -> 隐藏层(逆序) -> 输入层，每层使用下一层刚算出的 Deltas
func (nn *NeuronNetwork) backPropagate(target []float64, learningRate float64) error {
	if err := nn.OutputLayer.BackwardTarget(target, learningRate); err != nil {
		return err
	}
	next := nn.OutputLayer
	for i := len(nn.HiddenLayers) - 1; i >= 0; i-- {
		if err := nn.HiddenLayers[i].Backward(next, learningRate); err != nil {
			return err
		}
		next = nn.HiddenLayers[i]
	}
	return nn.InputLayer.Backward(next, learningRate)
}

// Run 推理，不修改任何参数
func (nn *NeuronNetwork) Run(input []float64) ([]float64, error) {
	return nn.FeedForward(input)
}

// Predict 预测样本的类别（输出向量最大值的下标）
func (nn *NeuronNetwork) Predict(input []float64) (int, error) {
	output, err := nn.FeedForward(input)
	if err != nil {
		return -1, err
	}
	return floats.MaxIdx(output), nil
}

// Test 在带标签的数据集上评估，match 判断一次输出是否算作正确，返回准确率
func (nn *NeuronNetwork) Test(inputs, targets [][]float64, match func(output, target []float64) bool) (float64, error) {
	if err := checkLen("样本数", len(inputs), len(targets)); err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	correct := 0
	for i := range inputs {
		output, err := nn.FeedForward(inputs[i])
		if err != nil {
			return 0, fmt.Errorf("样本 %d: %w", i, err)
		}
		if match(output, targets[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(inputs)), nil
}

// Loss 计算数据集上的平均损失（使用输出层的损失函数）
func (nn *NeuronNetwork) Loss(inputs, targets [][]float64) (float64, error) {
	if err := checkLen("样本数", len(inputs), len(targets)); err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	total := 0.0
	for i := range inputs {
		if err := checkLen("目标", nn.OutputLayer.Size, len(targets[i])); err != nil {
			return 0, err
		}
		output, err := nn.FeedForward(inputs[i])
		if err != nil {
			return 0, err
		}
		total += nn.OutputLayer.loss.Loss(mat.NewVecDense(len(targets[i]), targets[i]), mat.NewVecDense(len(output), output))
	}
	return total / float64(len(inputs)), nil
}

// BatchMode 批训练的参数更新方式
type BatchMode int

const (
	// BatchSequential 批内每个样本都立即更新参数（逐样本微更新），与逐个调用 Train 等价
	BatchSequential BatchMode = iota
	// BatchAveraged 批内所有样本基于同一组参数计算梯度，取平均后只更新一次
	BatchAveraged
)

func (m BatchMode) String() string {
	switch m {
	case BatchSequential:
		return "sequential"
	case BatchAveraged:
		return "averaged"
	default:
		return fmt.Sprintf("BatchMode(%d)", int(m))
	}
}

// ParseBatchMode 按名称解析批训练方式，空字符串为 BatchSequential
func ParseBatchMode(name string) (BatchMode, error) {
	switch name {
	case "", "sequential":
		return BatchSequential, nil
	case "averaged":
		return BatchAveraged, nil
	default:
		return 0, fmt.Errorf("未知的批训练方式: %q", name)
	}
}

// BatchedTrain 训练一个批次，返回每个样本前向传播的输出
// 所有样本的维度在更新任何参数之前检查
func (nn *NeuronNetwork) BatchedTrain(inputs, targets [][]float64, learningRate float64, mode BatchMode) ([][]float64, error) {
	if err := nn.checkBatch(inputs, targets); err != nil {
		return nil, err
	}
	switch mode {
	case BatchSequential:
		outputs := make([][]float64, len(inputs))
		for i := range inputs {
			out, err := nn.Train(inputs[i], targets[i], learningRate)
			if err != nil {
				return nil, fmt.Errorf("样本 %d: %w", i, err)
			}
			outputs[i] = out
		}
		return outputs, nil
	case BatchAveraged:
		grads := NewGradients(nn)
		outputs, err := nn.CalculateBatchGradients(inputs, targets, grads)
		if err != nil {
			return nil, err
		}
		nn.UpdateParameters(grads, learningRate, len(inputs))
		return outputs, nil
	default:
		return nil, fmt.Errorf("未知的批训练方式: %v", mode)
	}
}

func (nn *NeuronNetwork) checkBatch(inputs, targets [][]float64) error {
	if err := checkLen("批大小", len(inputs), len(targets)); err != nil {
		return err
	}
	for i := range inputs {
		if err := checkLen(fmt.Sprintf("样本 %d 输入", i), nn.InputLayer.Size, len(inputs[i])); err != nil {
			return err
		}
		if err := checkLen(fmt.Sprintf("样本 %d 目标", i), nn.OutputLayer.Size, len(targets[i])); err != nil {
			return err
		}
	}
	return nil
}

// Gradients 保存梯度信息的结构体，下标与 layers() 的顺序一致
type Gradients struct {
	// 每一层出边权重的梯度，输出层为nil
	WeightGrads []*mat.Dense
	// 每一层的偏置梯度
	BiasGrads []*mat.VecDense
}

// NewGradients 创建与网络结构一致的全零梯度
func NewGradients(nn *NeuronNetwork) *Gradients {
	layers := nn.layers()
	g := &Gradients{
		WeightGrads: make([]*mat.Dense, len(layers)),
		BiasGrads:   make([]*mat.VecDense, len(layers)),
	}
	for i, l := range layers {
		g.BiasGrads[i] = mat.NewVecDense(l.Size, nil)
		if l.NextSize > 0 {
			g.WeightGrads[i] = mat.NewDense(l.Size, l.NextSize, nil)
		}
	}
	return g
}

// CalculateBatchGradients 累加一个批次的梯度，不更新参数
func (nn *NeuronNetwork) CalculateBatchGradients(inputs, targets [][]float64, accum *Gradients) ([][]float64, error) {
	outputs := make([][]float64, len(inputs))
	for i := range inputs {
		out, err := nn.FeedForward(inputs[i])
		if err != nil {
			return nil, fmt.Errorf("样本 %d: %w", i, err)
		}
		if err := nn.computeAllDeltas(targets[i]); err != nil {
			return nil, fmt.Errorf("样本 %d: %w", i, err)
		}
		nn.addGradients(accum)
		outputs[i] = out
	}
	return outputs, nil
}

func (nn *NeuronNetwork) computeAllDeltas(target []float64) error {
	if err := nn.OutputLayer.computeOutputDeltas(target); err != nil {
		return err
	}
	next := nn.OutputLayer
	for i := len(nn.HiddenLayers) - 1; i >= 0; i-- {
		if err := nn.HiddenLayers[i].computeDeltas(next); err != nil {
			return err
		}
		next = nn.HiddenLayers[i]
	}
	return nn.InputLayer.computeDeltas(next)
}

// addGradients 累加当前 Values/Deltas 对应的梯度：db = delta, dW = values ⊗ next.delta
func (nn *NeuronNetwork) addGradients(accum *Gradients) {
	layers := nn.layers()
	for i, l := range layers {
		accum.BiasGrads[i].AddVec(accum.BiasGrads[i], l.Deltas)
		if accum.WeightGrads[i] != nil {
			accum.WeightGrads[i].RankOne(accum.WeightGrads[i], 1, l.Values, layers[i+1].Deltas)
		}
	}
}

// UpdateParameters 使用累积梯度的平均值更新参数
func (nn *NeuronNetwork) UpdateParameters(grads *Gradients, learningRate float64, batchSize int) {
	if learningRate == 0 || batchSize == 0 {
		return
	}
	scale := -learningRate / float64(batchSize)
	for i, l := range nn.layers() {
		l.Biases.AddScaledVec(l.Biases, scale, grads.BiasGrads[i])
		if l.Weights != nil {
			l.Weights.Add(l.Weights, scaled(grads.WeightGrads[i], scale))
		}
	}
}

func scaled(m *mat.Dense, f float64) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}
