package network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ClipGradients 逐层按L2范数裁剪梯度（权重与偏置合在一起计算范数）
// 返回每层裁剪后的范数，maxNorm <= 0 时不裁剪
func ClipGradients(grads *Gradients, maxNorm float64) []float64 {
	layerNorms := make([]float64, len(grads.BiasGrads))
	for i := range grads.BiasGrads {
		sq := math.Pow(mat.Norm(grads.BiasGrads[i], 2), 2)
		if grads.WeightGrads[i] != nil {
			sq += math.Pow(mat.Norm(grads.WeightGrads[i], 2), 2)
		}
		norm := math.Sqrt(sq)
		layerNorms[i] = norm

		if maxNorm > 0 && norm > maxNorm {
			scale := maxNorm / norm
			grads.BiasGrads[i].ScaleVec(scale, grads.BiasGrads[i])
			if grads.WeightGrads[i] != nil {
				grads.WeightGrads[i].Scale(scale, grads.WeightGrads[i])
			}
			layerNorms[i] = maxNorm
		}
	}
	return layerNorms
}

// ClippedBatchedTrain 与 BatchAveraged 方式的 BatchedTrain 相同，但在更新前裁剪累积梯度
func (nn *NeuronNetwork) ClippedBatchedTrain(inputs, targets [][]float64, learningRate, maxNorm float64) ([][]float64, error) {
	if err := nn.checkBatch(inputs, targets); err != nil {
		return nil, err
	}
	grads := NewGradients(nn)
	outputs, err := nn.CalculateBatchGradients(inputs, targets, grads)
	if err != nil {
		return nil, err
	}
	ClipGradients(grads, maxNorm)
	nn.UpdateParameters(grads, learningRate, len(inputs))
	return outputs, nil
}
