package dataProcess

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

/*
该文件实现MNIST数据集(IDX格式)的加载，文件可以是原始格式也可以是gzip压缩格式
*/

const (
	imagesMagic = 2051
	labelsMagic = 2049

	// maxImagePixels 单张图像像素数上限，文件头声称更大时视为损坏
	maxImagePixels = 1 << 20
	// preallocLimit 按文件头数量预分配的上限，超过部分随读取增长
	preallocLimit = 1 << 16
)

// Dataset 图像按行展开的像素值与对应标签
type Dataset struct {
	Images [][]byte
	Labels []byte
}

// Len 样本数
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// DatasetFiles 训练集和测试集的文件名
type DatasetFiles struct {
	TrainImages string `yaml:"train_images"`
	TrainLabels string `yaml:"train_labels"`
	TestImages  string `yaml:"test_images"`
	TestLabels  string `yaml:"test_labels"`
}

// DefaultDatasetFiles MNIST官方发布的文件名
func DefaultDatasetFiles() DatasetFiles {
	return DatasetFiles{
		TrainImages: "train-images-idx3-ubyte.gz",
		TrainLabels: "train-labels-idx1-ubyte.gz",
		TestImages:  "t10k-images-idx3-ubyte.gz",
		TestLabels:  "t10k-labels-idx1-ubyte.gz",
	}
}

// openIDX 打开文件，若以gzip魔数开头则自动解压
func openIDX(filename string) (io.Reader, func() error, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	br := bufio.NewReader(file)
	head, err := br.Peek(2)
	if err == nil && bytes.Equal(head, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("无法解压缩文件: %w", err)
		}
		return zr, func() error {
			zr.Close()
			return file.Close()
		}, nil
	}
	return br, file.Close, nil
}

// LoadImages 从 IDX 文件加载图像数据
func LoadImages(filename string) ([][]byte, error) {
	reader, closeFn, err := openIDX(filename)
	if err != nil {
		return nil, fmt.Errorf("无法打开图像文件: %w", err)
	}
	defer closeFn()
	return ReadImages(reader)
}

// ReadImages 读取 IDX 图像流（魔数、数量、行数、列数，随后是像素）
func ReadImages(reader io.Reader) ([][]byte, error) {
	var header [4]int32
	if err := binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("读取图像文件头失败: %w", err)
	}
	magicNumber, numImages, numRows, numCols := header[0], header[1], header[2], header[3]
	if magicNumber != imagesMagic {
		return nil, fmt.Errorf("文件格式不正确（魔数不匹配）: %d", magicNumber)
	}
	if numImages < 0 || numRows <= 0 || numCols <= 0 {
		return nil, fmt.Errorf("图像维度无效: %d x %d x %d", numImages, numRows, numCols)
	}

	pixels := int64(numRows) * int64(numCols)
	if pixels > maxImagePixels {
		return nil, fmt.Errorf("图像维度无效: %d x %d 超过 %d 像素", numRows, numCols, maxImagePixels)
	}

	// 数量来自文件头，不可信：只预分配有限容量，其余随实际读到的数据增长
	images := make([][]byte, 0, min(int(numImages), preallocLimit))
	for i := 0; i < int(numImages); i++ {
		img := make([]byte, pixels)
		if _, err := io.ReadFull(reader, img); err != nil {
			return nil, fmt.Errorf("读取第 %d 张图像失败: %w", i, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// LoadLabels 从 IDX 文件加载标签数据
func LoadLabels(filename string) ([]byte, error) {
	reader, closeFn, err := openIDX(filename)
	if err != nil {
		return nil, fmt.Errorf("无法打开标签文件: %w", err)
	}
	defer closeFn()
	return ReadLabels(reader)
}

// ReadLabels 读取 IDX 标签流
func ReadLabels(reader io.Reader) ([]byte, error) {
	var magicNumber, numItems int32
	if err := binary.Read(reader, binary.BigEndian, &magicNumber); err != nil {
		return nil, fmt.Errorf("读取魔数失败: %w", err)
	}
	if magicNumber != labelsMagic {
		return nil, fmt.Errorf("文件格式不正确（魔数不匹配）: %d", magicNumber)
	}
	if err := binary.Read(reader, binary.BigEndian, &numItems); err != nil {
		return nil, fmt.Errorf("读取标签数量失败: %w", err)
	}
	if numItems < 0 {
		return nil, fmt.Errorf("标签数量无效: %d", numItems)
	}
	labels, err := io.ReadAll(io.LimitReader(reader, int64(numItems)))
	if err != nil {
		return nil, fmt.Errorf("读取标签数据失败: %w", err)
	}
	if len(labels) != int(numItems) {
		return nil, fmt.Errorf("读取标签数据失败: 期望 %d 个标签, 实际 %d 个: %w", numItems, len(labels), io.ErrUnexpectedEOF)
	}
	return labels, nil
}

func loadPair(imagesPath, labelsPath string) (*Dataset, error) {
	images, err := LoadImages(imagesPath)
	if err != nil {
		return nil, err
	}
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("图像数量 %d 与标签数量 %d 不一致", len(images), len(labels))
	}
	return &Dataset{Images: images, Labels: labels}, nil
}

// LoadDataset 加载 dir 下的训练和测试数据集
func LoadDataset(dir string, files DatasetFiles) (*Dataset, *Dataset, error) {
	trainDataset, err := loadPair(filepath.Join(dir, files.TrainImages), filepath.Join(dir, files.TrainLabels))
	if err != nil {
		return nil, nil, fmt.Errorf("加载训练数据失败: %w", err)
	}
	testDataset, err := loadPair(filepath.Join(dir, files.TestImages), filepath.Join(dir, files.TestLabels))
	if err != nil {
		return nil, nil, fmt.Errorf("加载测试数据失败: %w", err)
	}
	return trainDataset, testDataset, nil
}

// Normalize 将像素值归一化到0-1之间
func Normalize(images [][]byte) [][]float64 {
	out := make([][]float64, len(images))
	for i, img := range images {
		v := make([]float64, len(img))
		for j, p := range img {
			v[j] = float64(p) / 255.0
		}
		out[i] = v
	}
	return out
}
