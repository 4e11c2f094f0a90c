package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"DigitNet/pkg/config"
	"DigitNet/pkg/dataProcess"
	"DigitNet/pkg/network"
	"DigitNet/pkg/training"
)

func main() {
	configPath := flag.String("config", "", "YAML配置文件路径，为空时使用默认配置")
	modelFile := flag.String("model", "", "网络文件路径，覆盖配置文件中的 training.model_file")
	epochs := flag.Int("epochs", 0, "训练轮数，覆盖配置文件中的 training.epochs")
	dataDir := flag.String("data", "", "数据集目录，覆盖配置文件中的 data.dir")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
	}
	if *modelFile != "" {
		cfg.Training.ModelFile = *modelFile
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	// 加载数据集
	trainX, trainY, testX, testY, err := loadData(cfg)
	if err != nil {
		log.Fatalf("加载数据集失败: %v", err)
	}
	fmt.Printf("训练数据集包含 %d 个样本\n", len(trainX))
	fmt.Printf("测试数据集包含 %d 个样本\n", len(testX))

	netCfg, err := cfg.NetworkConfig()
	if err != nil {
		log.Fatalf("配置无效: %v", err)
	}
	nn, _, err := training.LoadOrCreate(cfg.Training.ModelFile, netCfg, nil)
	if err != nil {
		log.Fatalf("创建网络失败: %v", err)
	}

	trainCfg, err := cfg.TrainConfig()
	if err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("开始训练模型...")
	trainer := training.NewTrainer(nn, trainCfg)
	_, runErr := trainer.Run(ctx, trainX, trainY, testX, testY)
	if runErr != nil {
		log.Printf("训练中止: %v", runErr)
	}

	if err := network.SaveNetwork(nn, cfg.Training.ModelFile); err != nil {
		log.Fatalf("保存网络失败: %v", err)
	}
	fmt.Printf("网络已保存到 %s\n", cfg.Training.ModelFile)

	// 展示一些测试样本的预测结果
	fmt.Println("\n测试样本预测结果:")
	for i := 0; i < 10 && i < len(testX); i++ {
		prediction, err := nn.Predict(testX[i])
		if err != nil {
			log.Fatalf("预测失败: %v", err)
		}
		fmt.Printf("样本 %d 的预测类别：%d, 真实类别：%d\n", i+1, prediction, training.ArgMax(testY[i]))
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// loadData 按配置的格式加载训练集和测试集，返回归一化后的输入和one-hot目标
func loadData(cfg *config.Config) (trainX, trainY, testX, testY [][]float64, err error) {
	numClasses := cfg.Network.OutputSize
	if cfg.Data.Format == "idx" {
		trainSet, testSet, err := dataProcess.LoadDataset(cfg.Data.Dir, cfg.Data.Files)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if trainX, trainY, err = training.PrepareData(trainSet, numClasses); err != nil {
			return nil, nil, nil, nil, err
		}
		if testX, testY, err = training.PrepareData(testSet, numClasses); err != nil {
			return nil, nil, nil, nil, err
		}
		return trainX, trainY, testX, testY, nil
	}

	files := cfg.Data.Files
	load := func(images, labels string) ([][]float64, [][]float64, error) {
		x, err := dataProcess.LoadImagesCSV(filepath.Join(cfg.Data.Dir, images))
		if err != nil {
			return nil, nil, err
		}
		l, err := dataProcess.LoadLabelsCSV(filepath.Join(cfg.Data.Dir, labels))
		if err != nil {
			return nil, nil, err
		}
		if len(x) != len(l) {
			return nil, nil, fmt.Errorf("%w: %d 张图像, %d 个标签", dataProcess.ErrLengthMismatch, len(x), len(l))
		}
		y, err := training.ClassifyLabels(l, numClasses)
		return x, y, err
	}
	if trainX, trainY, err = load(files.TrainImages, files.TrainLabels); err != nil {
		return nil, nil, nil, nil, err
	}
	if testX, testY, err = load(files.TestImages, files.TestLabels); err != nil {
		return nil, nil, nil, nil, err
	}
	return trainX, trainY, testX, testY, nil
}
