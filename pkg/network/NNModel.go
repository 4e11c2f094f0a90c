package network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

/*
该文件包含整个神经网络的初始化方法：输入层 -> 若干隐藏层 -> 输出层
*/

// NeuronNetwork 由输入层、隐藏层序列和输出层组成，层之间不共享任何缓冲区
type NeuronNetwork struct {
	InputLayer   *Layer
	HiddenLayers []*Layer
	OutputLayer  *Layer
}

// NetworkConfig 网络配置结构体
type NetworkConfig struct {
	InputSize         int              // 输入层维度
	OutputSize        int              // 输出层维度（分类数）
	HiddenSizes       []int            // 每个隐藏层的节点数，可以为空
	HiddenActivations []ActivationKind // 每个隐藏层的激活函数，为空时全部使用LeakyReLU
	InputActivation   ActivationKind
	OutputActivation  ActivationKind
	OutputLoss        LossKind
	Src               rand.Source // 为nil时使用系统熵
}

// NewNetworkConfig 创建一个默认的网络配置
func NewNetworkConfig(inputSize, outputSize int, hiddenSizes ...int) NetworkConfig {
	return NetworkConfig{
		InputSize:        inputSize,
		OutputSize:       outputSize,
		HiddenSizes:      hiddenSizes,
		InputActivation:  ActivationSigmoid,
		OutputActivation: ActivationSoftmax,
		OutputLoss:       LossCrossEntropy,
	}
}

// NewNeuronNetwork 随机初始化网络
// 权重服从 N(0, sqrt(2/(输入维度+输出维度)))，偏置服从 N(0, 0.001)
func NewNeuronNetwork(cfg NetworkConfig) (*NeuronNetwork, error) {
	if cfg.InputSize < 1 || cfg.OutputSize < 1 {
		return nil, fmt.Errorf("%w: 输入维度 %d, 输出维度 %d", ErrInvalidTopology, cfg.InputSize, cfg.OutputSize)
	}
	if len(cfg.HiddenActivations) != 0 && len(cfg.HiddenActivations) != len(cfg.HiddenSizes) {
		return nil, fmt.Errorf("%w: %d 个隐藏层却给出 %d 个激活函数",
			ErrInvalidTopology, len(cfg.HiddenSizes), len(cfg.HiddenActivations))
	}
	src := cfg.Src
	if src == nil {
		src = NewEntropySource()
	}
	sigma := math.Sqrt(2.0 / float64(cfg.InputSize+cfg.OutputSize))
	weightDist := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	biasDist := distuv.Normal{Mu: 0, Sigma: 0.001, Src: src}

	build := func(size, nextSize int, act ActivationKind, loss LossKind) (*Layer, error) {
		return NewLayer(LayerConfig{
			Size:       size,
			NextSize:   nextSize,
			Activation: act,
			Loss:       loss,
			WeightDist: weightDist,
			BiasDist:   biasDist,
		})
	}

	firstNext := cfg.OutputSize
	if len(cfg.HiddenSizes) > 0 {
		firstNext = cfg.HiddenSizes[0]
	}
	inputLayer, err := build(cfg.InputSize, firstNext, cfg.InputActivation, LossMeanSquaredError)
	if err != nil {
		return nil, fmt.Errorf("输入层: %w", err)
	}

	hidden := make([]*Layer, len(cfg.HiddenSizes))
	for i, size := range cfg.HiddenSizes {
		next := cfg.OutputSize
		if i+1 < len(cfg.HiddenSizes) {
			next = cfg.HiddenSizes[i+1]
		}
		act := ActivationLeakyReLU
		if len(cfg.HiddenActivations) > 0 {
			act = cfg.HiddenActivations[i]
		}
		hidden[i], err = build(size, next, act, LossMeanSquaredError)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个隐藏层: %w", i, err)
		}
	}

	outputLayer, err := build(cfg.OutputSize, 0, cfg.OutputActivation, cfg.OutputLoss)
	if err != nil {
		return nil, fmt.Errorf("输出层: %w", err)
	}
	return &NeuronNetwork{InputLayer: inputLayer, HiddenLayers: hidden, OutputLayer: outputLayer}, nil
}

// NewNeuronNetworkFromLayers 由已有的层组装网络，并检查相邻层的大小关系
func NewNeuronNetworkFromLayers(input *Layer, hidden []*Layer, output *Layer) (*NeuronNetwork, error) {
	nn := &NeuronNetwork{InputLayer: input, HiddenLayers: hidden, OutputLayer: output}
	if err := nn.Validate(); err != nil {
		return nil, err
	}
	return nn, nil
}

// Validate 检查 每层.NextSize == 下一层.Size 且输出层 NextSize == 0
func (nn *NeuronNetwork) Validate() error {
	if nn.InputLayer == nil || nn.OutputLayer == nil {
		return fmt.Errorf("%w: 缺少输入层或输出层", ErrInvalidTopology)
	}
	layers := nn.layers()
	for i := 0; i+1 < len(layers); i++ {
		if layers[i] == nil || layers[i+1] == nil {
			return fmt.Errorf("%w: 第 %d 层为空", ErrInvalidTopology, i)
		}
		if layers[i].NextSize != layers[i+1].Size {
			return fmt.Errorf("%w: 第 %d 层的下一层大小为 %d，但第 %d 层大小为 %d",
				ErrInvalidTopology, i, layers[i].NextSize, i+1, layers[i+1].Size)
		}
	}
	if nn.OutputLayer.NextSize != 0 {
		return fmt.Errorf("%w: 输出层的下一层大小必须为0，实际为 %d", ErrInvalidTopology, nn.OutputLayer.NextSize)
	}
	return nil
}

// layers 按顺序返回所有层
func (nn *NeuronNetwork) layers() []*Layer {
	all := make([]*Layer, 0, len(nn.HiddenLayers)+2)
	all = append(all, nn.InputLayer)
	all = append(all, nn.HiddenLayers...)
	return append(all, nn.OutputLayer)
}

// LayerInfo 单层的结构描述
type LayerInfo struct {
	Size       int    `json:"size" yaml:"size"`
	NextSize   int    `json:"next_size" yaml:"next_size"`
	Activation string `json:"activation" yaml:"activation"`
	Loss       string `json:"loss" yaml:"loss"`
}

// Topology 返回各层的结构
func (nn *NeuronNetwork) Topology() []LayerInfo {
	var infos []LayerInfo
	for _, l := range nn.layers() {
		infos = append(infos, LayerInfo{
			Size:       l.Size,
			NextSize:   l.NextSize,
			Activation: l.activationKind.String(),
			Loss:       l.lossKind.String(),
		})
	}
	return infos
}

// InputSize 输入向量长度
func (nn *NeuronNetwork) InputSize() int { return nn.InputLayer.Size }

// OutputSize 输出向量长度
func (nn *NeuronNetwork) OutputSize() int { return nn.OutputLayer.Size }
