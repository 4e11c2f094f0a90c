package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"DigitNet/pkg/dataProcess"
	"DigitNet/pkg/network"
	"DigitNet/pkg/training"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("配置无效")

// Config 训练程序和推理服务共用的配置
type Config struct {
	Network  NetworkConfig  `yaml:"network"`
	Training TrainingConfig `yaml:"training"`
	Data     DataConfig     `yaml:"data"`
	Server   ServerConfig   `yaml:"server"`
}

// NetworkConfig 网络结构
type NetworkConfig struct {
	InputSize        int    `yaml:"input_size"`
	OutputSize       int    `yaml:"output_size"`
	HiddenSizes      []int  `yaml:"hidden_sizes"`
	InputActivation  string `yaml:"input_activation"`
	HiddenActivation string `yaml:"hidden_activation"`
	// HiddenActivations 逐层指定隐藏层激活函数，长度须与 HiddenSizes 相同；为空时各层统一使用 HiddenActivation
	HiddenActivations []string `yaml:"hidden_activations,omitempty"`
	OutputActivation  string   `yaml:"output_activation"`
	Loss              string   `yaml:"loss"`
	Seed              uint64   `yaml:"seed"` // 0 表示使用系统熵
}

// TrainingConfig 训练参数
type TrainingConfig struct {
	ModelFile    string  `yaml:"model_file"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	BatchMode    string  `yaml:"batch_mode"`
	LearningRate float64 `yaml:"learning_rate"`
	ClipNorm     float64 `yaml:"clip_norm"`
	ReportEvery  int     `yaml:"report_every"`
	ShuffleSeed  uint64  `yaml:"shuffle_seed"`
}

// DataConfig 数据集位置
type DataConfig struct {
	Dir    string                   `yaml:"dir"`
	Format string                   `yaml:"format"` // idx 或 csv
	Files  dataProcess.DatasetFiles `yaml:"files"`
}

// ServerConfig 推理服务
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ModelFile      string        `yaml:"model_file"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	Release        bool          `yaml:"release"`
}

// Default 返回默认配置：784-100-100-10 的MNIST网络
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			InputSize:        784,
			OutputSize:       10,
			HiddenSizes:      []int{100, 100},
			InputActivation:  network.ActivationSigmoid.String(),
			HiddenActivation: network.ActivationLeakyReLU.String(),
			OutputActivation: network.ActivationSoftmax.String(),
			Loss:             network.LossCrossEntropy.String(),
		},
		Training: TrainingConfig{
			ModelFile:    "mnist-network-v1.dat",
			Epochs:       1,
			BatchSize:    1,
			BatchMode:    network.BatchSequential.String(),
			LearningRate: 0.0001,
			ReportEvery:  100,
		},
		Data: DataConfig{
			Dir:    "data",
			Format: "idx",
			Files:  dataProcess.DefaultDatasetFiles(),
		},
		Server: ServerConfig{
			Addr:           ":8080",
			ModelFile:      "mnist-network-v1.dat",
			SessionTimeout: 10 * time.Minute,
			PruneInterval:  time.Minute,
		},
	}
}

// Load 读取YAML配置，未出现的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save 写出YAML配置
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate 检查配置的合法性
func (c *Config) Validate() error {
	if _, err := c.NetworkConfig(); err != nil {
		return err
	}
	if _, err := c.TrainConfig(); err != nil {
		return err
	}
	switch c.Data.Format {
	case "idx", "csv":
	default:
		return fmt.Errorf("%w: 未知的数据格式 %q", ErrInvalidConfig, c.Data.Format)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: 服务监听地址为空", ErrInvalidConfig)
	}
	if c.Server.SessionTimeout <= 0 || c.Server.PruneInterval <= 0 {
		return fmt.Errorf("%w: 会话超时和清理间隔必须为正数", ErrInvalidConfig)
	}
	return nil
}

// NetworkConfig 转换为网络构建参数
func (c *Config) NetworkConfig() (network.NetworkConfig, error) {
	n := c.Network
	if n.InputSize < 1 || n.OutputSize < 1 {
		return network.NetworkConfig{}, fmt.Errorf("%w: 输入维度 %d, 输出维度 %d", ErrInvalidConfig, n.InputSize, n.OutputSize)
	}
	for i, size := range n.HiddenSizes {
		if size < 1 {
			return network.NetworkConfig{}, fmt.Errorf("%w: 第 %d 个隐藏层大小为 %d", ErrInvalidConfig, i, size)
		}
	}
	in, err := network.ParseActivationKind(n.InputActivation)
	if err != nil {
		return network.NetworkConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	hidden, err := hiddenActivations(n)
	if err != nil {
		return network.NetworkConfig{}, err
	}
	out, err := network.ParseActivationKind(n.OutputActivation)
	if err != nil {
		return network.NetworkConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	loss, err := network.ParseLossKind(n.Loss)
	if err != nil {
		return network.NetworkConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	nc := network.NewNetworkConfig(n.InputSize, n.OutputSize, n.HiddenSizes...)
	nc.InputActivation = in
	nc.OutputActivation = out
	nc.OutputLoss = loss
	nc.HiddenActivations = hidden
	if n.Seed != 0 {
		nc.Src = network.NewSeededSource(n.Seed)
	}
	return nc, nil
}

func hiddenActivations(n NetworkConfig) ([]network.ActivationKind, error) {
	kinds := make([]network.ActivationKind, len(n.HiddenSizes))
	if len(n.HiddenActivations) == 0 {
		kind, err := network.ParseActivationKind(n.HiddenActivation)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		for i := range kinds {
			kinds[i] = kind
		}
		return kinds, nil
	}
	if len(n.HiddenActivations) != len(n.HiddenSizes) {
		return nil, fmt.Errorf("%w: %d 个隐藏层激活函数, %d 个隐藏层", ErrInvalidConfig, len(n.HiddenActivations), len(n.HiddenSizes))
	}
	for i, name := range n.HiddenActivations {
		kind, err := network.ParseActivationKind(name)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 个隐藏层: %w", ErrInvalidConfig, i, err)
		}
		kinds[i] = kind
	}
	return kinds, nil
}

// TrainConfig 转换为训练参数
func (c *Config) TrainConfig() (training.TrainConfig, error) {
	t := c.Training
	mode, err := network.ParseBatchMode(t.BatchMode)
	if err != nil {
		return training.TrainConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if t.Epochs < 0 || t.BatchSize < 1 || t.LearningRate < 0 || t.ClipNorm < 0 || t.ReportEvery < 0 {
		return training.TrainConfig{}, fmt.Errorf("%w: epochs=%d batch_size=%d learning_rate=%g clip_norm=%g report_every=%d",
			ErrInvalidConfig, t.Epochs, t.BatchSize, t.LearningRate, t.ClipNorm, t.ReportEvery)
	}
	tc := training.NewTrainConfig()
	tc.Epochs = t.Epochs
	tc.BatchSize = t.BatchSize
	tc.Mode = mode
	tc.LearningRate = t.LearningRate
	tc.ClipNorm = t.ClipNorm
	tc.ReportEvery = t.ReportEvery
	tc.Seed = t.ShuffleSeed
	return tc, nil
}
