package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"DigitNet/pkg/config"
	"DigitNet/pkg/network"
	"DigitNet/pkg/server"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "YAML配置文件路径，为空时使用默认配置")
	addr := flag.String("addr", "", "监听地址，覆盖配置文件中的 server.addr")
	modelFile := flag.String("model", "", "网络文件路径，覆盖配置文件中的 server.model_file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *modelFile != "" {
		cfg.Server.ModelFile = *modelFile
	}
	if cfg.Server.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	nn, err := network.LoadNetwork(cfg.Server.ModelFile)
	if err != nil {
		log.Fatalf("加载网络失败: %v", err)
	}
	log.Printf("网络已加载: %s", cfg.Server.ModelFile)

	opts := server.DefaultOptions()
	opts.SessionTimeout = cfg.Server.SessionTimeout
	opts.PruneInterval = cfg.Server.PruneInterval
	opts.DefaultLearningRate = cfg.Training.LearningRate
	srv := server.New(nn, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.Fatalf("推理服务异常退出: %v", err)
	}
}
