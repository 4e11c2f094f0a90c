package training

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"DigitNet/pkg/dataProcess"
	"DigitNet/pkg/network"

	"gonum.org/v1/gonum/floats"
)

// OneHotEncode 将标签转换为one-hot编码
func OneHotEncode(label int, numClasses int) ([]float64, error) {
	if label < 0 || label >= numClasses {
		return nil, fmt.Errorf("标签 %d 超出类别范围 [0, %d)", label, numClasses)
	}
	oneHot := make([]float64, numClasses)
	oneHot[label] = 1.0
	return oneHot, nil
}

// ClassifyLabels 将一组标签转换为one-hot向量
func ClassifyLabels(labels []int, numClasses int) ([][]float64, error) {
	targets := make([][]float64, len(labels))
	for i, label := range labels {
		t, err := OneHotEncode(label, numClasses)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个样本: %w", i, err)
		}
		targets[i] = t
	}
	return targets, nil
}

// ArgMax 返回最大值下标，空向量返回-1
func ArgMax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	return floats.MaxIdx(v)
}

// MatchArgMax 输出与one-hot目标的最大值下标相同即视为正确
func MatchArgMax(output, target []float64) bool {
	return ArgMax(output) == ArgMax(target)
}

// PrepareData 准备训练和测试数据：像素归一化、标签one-hot编码
func PrepareData(dataset *dataProcess.Dataset, numClasses int) ([][]float64, [][]float64, error) {
	labels := make([]int, len(dataset.Labels))
	for i, l := range dataset.Labels {
		labels[i] = int(l)
	}
	targets, err := ClassifyLabels(labels, numClasses)
	if err != nil {
		return nil, nil, err
	}
	return dataProcess.Normalize(dataset.Images), targets, nil
}

// TrainConfig 训练配置
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Mode         network.BatchMode
	ClipNorm     float64 // BatchAveraged 方式下逐层梯度的L2范数上限，0表示不裁剪
	ReportEvery  int     // 每训练多少个样本打印一次窗口准确率，0表示不打印
	Seed         uint64  // 打乱数据使用的种子，0表示使用系统熵
	Logger       *log.Logger
}

// NewTrainConfig 创建一个默认的训练配置
func NewTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       1,
		BatchSize:    1,
		LearningRate: 0.0001,
		Mode:         network.BatchSequential,
		ReportEvery:  100,
	}
}

// EpochStats 单轮训练的统计
type EpochStats struct {
	Epoch         int
	Samples       int
	TrainAccuracy float64
	TestAccuracy  float64
	TestLoss      float64
	Duration      time.Duration
}

// Trainer 驱动网络按轮次训练
type Trainer struct {
	Net    *network.NeuronNetwork
	Config TrainConfig
}

// NewTrainer 创建训练器
func NewTrainer(nn *network.NeuronNetwork, cfg TrainConfig) *Trainer {
	return &Trainer{Net: nn, Config: cfg}
}

func (t *Trainer) logger() *log.Logger {
	if t.Config.Logger != nil {
		return t.Config.Logger
	}
	return log.Default()
}

// Run 训练 Config.Epochs 轮；每轮打乱、分批、训练，然后在测试集上评估
// 批次之间检查 ctx，取消时返回已完成轮次的统计和 ctx 的错误
func (t *Trainer) Run(ctx context.Context, trainInputs, trainTargets, testInputs, testTargets [][]float64) ([]EpochStats, error) {
	cfg := t.Config
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", dataProcess.ErrBatchSize, cfg.BatchSize)
	}
	if len(trainInputs) != len(trainTargets) {
		return nil, fmt.Errorf("%w: %d 个输入, %d 个目标", dataProcess.ErrLengthMismatch, len(trainInputs), len(trainTargets))
	}
	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	logger := t.logger()

	var history []EpochStats
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		indices := dataProcess.GenerateShuffledIndices(len(trainInputs), rng)
		inputBatches, err := dataProcess.BatchShuffled(trainInputs, cfg.BatchSize, indices)
		if err != nil {
			return history, err
		}
		targetBatches, err := dataProcess.BatchShuffled(trainTargets, cfg.BatchSize, indices)
		if err != nil {
			return history, err
		}

		seen, correct, windowSeen, windowCorrect := 0, 0, 0, 0
		for b := range inputBatches {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			outputs, err := t.trainBatch(inputBatches[b], targetBatches[b])
			if err != nil {
				return history, fmt.Errorf("第 %d 轮第 %d 批: %w", epoch, b, err)
			}
			for i, out := range outputs {
				hit := MatchArgMax(out, targetBatches[b][i])
				seen++
				windowSeen++
				if hit {
					correct++
					windowCorrect++
				}
				if cfg.ReportEvery > 0 && windowSeen == cfg.ReportEvery {
					logger.Printf("第 %d 轮 已训练 %d 个样本 - 窗口准确率: %.2f%%", epoch, seen, 100*float64(windowCorrect)/float64(windowSeen))
					windowSeen, windowCorrect = 0, 0
				}
			}
		}

		stats := EpochStats{Epoch: epoch, Samples: seen}
		if seen > 0 {
			stats.TrainAccuracy = float64(correct) / float64(seen)
		}
		if len(testInputs) > 0 {
			if stats.TestAccuracy, err = t.Net.Test(testInputs, testTargets, MatchArgMax); err != nil {
				return history, err
			}
			if stats.TestLoss, err = t.Net.Loss(testInputs, testTargets); err != nil {
				return history, err
			}
		}
		stats.Duration = time.Since(start)
		logger.Printf("第 %d 轮训练 - 训练准确率: %.2f%%, 测试准确率: %.2f%%, 测试损失: %.4f, 耗时: %v",
			epoch, stats.TrainAccuracy*100, stats.TestAccuracy*100, stats.TestLoss, stats.Duration)
		history = append(history, stats)
	}
	return history, nil
}

func (t *Trainer) trainBatch(inputs, targets [][]float64) ([][]float64, error) {
	cfg := t.Config
	if cfg.ClipNorm > 0 && cfg.Mode == network.BatchAveraged {
		return t.Net.ClippedBatchedTrain(inputs, targets, cfg.LearningRate, cfg.ClipNorm)
	}
	return t.Net.BatchedTrain(inputs, targets, cfg.LearningRate, cfg.Mode)
}

// LoadOrCreate 若 path 存在则在已有网络上继续训练，否则按 cfg 新建网络
// 第二个返回值表示是否从文件加载
func LoadOrCreate(path string, cfg network.NetworkConfig, logger *log.Logger) (*network.NeuronNetwork, bool, error) {
	if logger == nil {
		logger = log.Default()
	}
	if _, err := os.Stat(path); err == nil {
		nn, err := network.LoadNetwork(path)
		if err != nil {
			return nil, false, err
		}
		if nn.InputSize() != cfg.InputSize || nn.OutputSize() != cfg.OutputSize {
			return nil, false, fmt.Errorf("%w: 文件中的网络为 %d -> %d, 期望 %d -> %d", network.ErrInvalidTopology,
				nn.InputSize(), nn.OutputSize(), cfg.InputSize, cfg.OutputSize)
		}
		logger.Printf("在已有网络上继续训练: %s", path)
		return nn, true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	nn, err := network.NewNeuronNetwork(cfg)
	if err != nil {
		return nil, false, err
	}
	logger.Printf("新建网络: %v", cfg.HiddenSizes)
	return nn, false, nil
}
