package network

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"unicode"
)

/*
该文件实现层和网络的文本序列化格式：
<layer> size: I next-size: J biases: ... weights: ... activation-function: K loss-function: L </layer>
读取时先切分为标签和数值记号，再按字段标签定位各自后面连续的数值
*/

const lineEnd = "\r\n"

const (
	labelSize       = "size:"
	labelNextSize   = "next-size:"
	labelBiases     = "biases:"
	labelWeights    = "weights:"
	labelActivation = "activation-function:"
	labelLoss       = "loss-function:"
)

var layerLabels = []string{labelSize, labelNextSize, labelBiases, labelWeights, labelActivation, labelLoss}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (l *Layer) encode(buf *bytes.Buffer) {
	buf.WriteString("<layer>" + lineEnd)
	fmt.Fprintf(buf, "%s %d%s", labelSize, l.Size, lineEnd)
	fmt.Fprintf(buf, "%s %d%s", labelNextSize, l.NextSize, lineEnd)
	buf.WriteString(labelBiases + " ")
	for i := 0; i < l.Size; i++ {
		buf.WriteString(formatFloat(l.Biases.AtVec(i)))
		buf.WriteByte(' ')
	}
	buf.WriteString(lineEnd)
	buf.WriteString(labelWeights + " ")
	for i := 0; i < l.Size; i++ {
		for j := 0; j < l.NextSize; j++ {
			buf.WriteString(formatFloat(l.Weights.At(i, j)))
			buf.WriteByte(' ')
		}
		buf.WriteString(lineEnd)
	}
	fmt.Fprintf(buf, "%s %d%s", labelActivation, int(l.activationKind), lineEnd)
	fmt.Fprintf(buf, "%s %d%s", labelLoss, int(l.lossKind), lineEnd)
	buf.WriteString("</layer>")
}

// MarshalText 将层编码为文本块
func (l *Layer) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	l.encode(&buf)
	return buf.Bytes(), nil
}

// WriteTo 将层写入 w
func (l *Layer) WriteTo(w io.Writer) (int64, error) {
	data, _ := l.MarshalText()
	n, err := w.Write(data)
	return int64(n), err
}

// MarshalText 将整个网络编码为文本
func (nn *NeuronNetwork) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<network>" + lineEnd)
	buf.WriteString("<hidden-layers-counts>" + lineEnd)
	buf.WriteString(strconv.Itoa(len(nn.HiddenLayers)) + lineEnd)
	buf.WriteString("</hidden-layers-counts>" + lineEnd)
	buf.WriteString("<input-layer>" + lineEnd)
	nn.InputLayer.encode(&buf)
	buf.WriteString("</input-layer>" + lineEnd)
	buf.WriteString("<hidden-layers>" + lineEnd)
	for i, layer := range nn.HiddenLayers {
		fmt.Fprintf(&buf, "<%d>%s", i, lineEnd)
		layer.encode(&buf)
		buf.WriteString(lineEnd)
		fmt.Fprintf(&buf, "</%d>%s", i, lineEnd)
	}
	buf.WriteString("</hidden-layers>" + lineEnd)
	buf.WriteString("<output-layer>" + lineEnd)
	nn.OutputLayer.encode(&buf)
	buf.WriteString(lineEnd)
	buf.WriteString("</output-layer>" + lineEnd)
	buf.WriteString("</network>")
	return buf.Bytes(), nil
}

// WriteTo 将网络写入 w
func (nn *NeuronNetwork) WriteTo(w io.Writer) (int64, error) {
	data, _ := nn.MarshalText()
	n, err := w.Write(data)
	return int64(n), err
}

// ReadLayer 从 r 中读取第一个 <layer> 块
func ReadLayer(r io.Reader) (*Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseLayer(data)
}

// ParseLayer 解析第一个 <layer> 块
func ParseLayer(data []byte) (*Layer, error) {
	s := newTokenStream(data)
	return s.layer()
}

// ReadNetwork 从 r 中读取网络，读取后检查拓扑
func ReadNetwork(r io.Reader) (*NeuronNetwork, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseNetwork(data)
}

// ParseNetwork 解析 <network> 文本
func ParseNetwork(data []byte) (*NeuronNetwork, error) {
	s := newTokenStream(data)
	if err := s.skipTill("<hidden-layers-counts>"); err != nil {
		return nil, err
	}
	countTok, ok := s.next()
	if !ok {
		return nil, corruptf("缺少隐藏层数量")
	}
	hiddenCount, err := strconv.Atoi(countTok)
	if err != nil || hiddenCount < 0 || hiddenCount > s.remaining() {
		return nil, corruptf("隐藏层数量无效: %q", countTok)
	}

	if err := s.skipTill("<input-layer>"); err != nil {
		return nil, err
	}
	input, err := s.layer()
	if err != nil {
		return nil, fmt.Errorf("输入层: %w", err)
	}

	if err := s.skipTill("<hidden-layers>"); err != nil {
		return nil, err
	}
	hidden := make([]*Layer, hiddenCount)
	for i := range hidden {
		if hidden[i], err = s.layer(); err != nil {
			return nil, fmt.Errorf("第 %d 个隐藏层: %w", i, err)
		}
	}

	if err := s.skipTill("<output-layer>"); err != nil {
		return nil, err
	}
	output, err := s.layer()
	if err != nil {
		return nil, fmt.Errorf("输出层: %w", err)
	}
	if err := s.skipTill("</network>"); err != nil {
		return nil, err
	}

	nn, err := NewNeuronNetworkFromLayers(input, hidden, output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFormat, err)
	}
	return nn, nil
}

// tokenStream 标签(<...>)和以空白分隔的记号序列
type tokenStream struct {
	toks []string
	pos  int
}

func newTokenStream(data []byte) *tokenStream {
	return &tokenStream{toks: tokenize(data)}
}

// tokenize 标签即使与相邻文本相连（如 "</layer></input-layer>"）也会被单独切出
func tokenize(data []byte) []string {
	var toks []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			toks = append(toks, string(cur))
			cur = cur[:0]
		}
	}
	inTag := false
	for _, r := range string(data) {
		switch {
		case r == '<':
			flush()
			inTag = true
			cur = append(cur, r)
		case r == '>' && inTag:
			cur = append(cur, r)
			flush()
			inTag = false
		case unicode.IsSpace(r):
			flush()
			inTag = false
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return toks
}

func (s *tokenStream) next() (string, bool) {
	if s.pos >= len(s.toks) {
		return "", false
	}
	t := s.toks[s.pos]
	s.pos++
	return t, true
}

func (s *tokenStream) remaining() int {
	return len(s.toks) - s.pos
}

// skipTill 前进到 tok 之后
func (s *tokenStream) skipTill(tok string) error {
	for s.pos < len(s.toks) {
		t := s.toks[s.pos]
		s.pos++
		if t == tok {
			return nil
		}
	}
	return corruptf("缺少 %s", tok)
}

// layer 读取下一个 <layer> ... </layer> 块
func (s *tokenStream) layer() (*Layer, error) {
	if err := s.skipTill("<layer>"); err != nil {
		return nil, err
	}
	start := s.pos
	if err := s.skipTill("</layer>"); err != nil {
		return nil, err
	}
	return parseLayerBody(s.toks[start : s.pos-1])
}

func parseLayerBody(body []string) (*Layer, error) {
	at := make(map[string]int, len(layerLabels))
	for i, t := range body {
		if _, seen := at[t]; !seen && isLayerLabel(t) {
			at[t] = i + 1
		}
	}
	for _, label := range layerLabels {
		if _, ok := at[label]; !ok {
			return nil, corruptf("缺少字段 %s", label)
		}
	}

	ints, err := parseInts(body, at, labelSize, labelNextSize, labelActivation, labelLoss)
	if err != nil {
		return nil, err
	}
	size, nextSize := ints[0], ints[1]
	if size < 1 || nextSize < 0 {
		return nil, corruptf("层大小 %d, 下一层大小 %d", size, nextSize)
	}
	biases, err := parseFloats(body, at[labelBiases], size)
	if err != nil {
		return nil, fmt.Errorf("%s %w", labelBiases, err)
	}
	if nextSize > len(body) {
		return nil, corruptf("权重数量不足")
	}
	weights, err := parseFloats(body, at[labelWeights], size*nextSize)
	if err != nil {
		return nil, fmt.Errorf("%s %w", labelWeights, err)
	}
	l, err := NewLayerWithParams(size, nextSize, biases, weights, ActivationKind(ints[2]), LossKind(ints[3]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFormat, err)
	}
	return l, nil
}

func isLayerLabel(t string) bool {
	for _, label := range layerLabels {
		if t == label {
			return true
		}
	}
	return false
}

func parseInts(body []string, at map[string]int, labels ...string) ([]int, error) {
	out := make([]int, len(labels))
	for i, label := range labels {
		idx := at[label]
		if idx >= len(body) {
			return nil, corruptf("%s 缺少数值", label)
		}
		v, err := strconv.Atoi(body[idx])
		if err != nil {
			return nil, corruptf("%s %q 不是整数", label, body[idx])
		}
		out[i] = v
	}
	return out, nil
}

// parseFloats 解析从 start 开始的 count 个连续数值
func parseFloats(body []string, start, count int) ([]float64, error) {
	if count > len(body)-start {
		return nil, corruptf("需要 %d 个数值, 只剩 %d 个记号", count, len(body)-start)
	}
	out := make([]float64, count)
	for i := range out {
		v, err := strconv.ParseFloat(body[start+i], 64)
		if err != nil {
			return nil, corruptf("%q 不是数值", body[start+i])
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, corruptf("%q 不是有限数值", body[start+i])
		}
		out[i] = v
	}
	return out, nil
}
