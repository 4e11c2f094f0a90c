package dataProcess

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// LoadImagesCSV 读取CSV格式的图像数据，每行一张图像
func LoadImagesCSV(path string) ([][]float64, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	images := make([][]float64, len(records))
	for i, record := range records {
		images[i] = make([]float64, len(record))
		for j, val := range record {
			images[i][j], err = strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行第 %d 列: %w", i+1, j+1, err)
			}
		}
	}
	return images, nil
}

// LoadLabelsCSV 读取CSV格式的标签数据，每行第一列为标签
func LoadLabelsCSV(path string) ([]int, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(records))
	for i, record := range records {
		if len(record) == 0 {
			return nil, fmt.Errorf("第 %d 行为空", i+1)
		}
		labels[i], err = strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
	}
	return labels, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析CSV文件 %s 失败: %w", path, err)
	}
	return records, nil
}
