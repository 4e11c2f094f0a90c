package network

import (
	"bytes"
	"fmt"
	"os"
)

// SaveNetwork 将网络写入文件
func SaveNetwork(nn *NeuronNetwork, path string) error {
	data, err := nn.MarshalText()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("保存网络失败: %w", err)
	}
	return nil
}

// LoadNetwork 从文件读取网络
func LoadNetwork(path string) (*NeuronNetwork, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开网络文件: %w", err)
	}
	defer f.Close()
	nn, err := ReadNetwork(f)
	if err != nil {
		return nil, fmt.Errorf("读取网络文件 %s 失败: %w", path, err)
	}
	return nn, nil
}

// Clone 通过文本编码深拷贝网络
func (nn *NeuronNetwork) Clone() (*NeuronNetwork, error) {
	data, err := nn.MarshalText()
	if err != nil {
		return nil, err
	}
	return ReadNetwork(bytes.NewReader(data))
}
