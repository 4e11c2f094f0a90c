package canvas

/*
手写板：28x28 的灰度位图，画笔在落点写入255，并把上下左右四个邻格软涂为128
*/

const (
	// Side 画板边长
	Side = 28
	// Full 画笔落点的灰度
	Full = 255
	// Soft 邻格的灰度
	Soft = 128
)

// Canvas 行优先存储的位图，Pixels[y][x]
type Canvas struct {
	Pixels [Side][Side]byte
}

// New 返回一块空白画板
func New() *Canvas {
	return &Canvas{}
}

func inRange(x, y int) bool {
	return x >= 0 && x < Side && y >= 0 && y < Side
}

// Paint 在 (x, y) 落笔，落点已是满灰度或坐标越界时不做任何事
// 返回画板是否发生变化
func (c *Canvas) Paint(x, y int) bool {
	if !inRange(x, y) || c.Pixels[y][x] == Full {
		return false
	}
	c.Pixels[y][x] = Full
	c.soften(x, y, Soft)
	return true
}

// Erase 擦除 (x, y) 的满灰度落点及其非满灰度的邻格
func (c *Canvas) Erase(x, y int) bool {
	if !inRange(x, y) || c.Pixels[y][x] != Full {
		return false
	}
	c.Pixels[y][x] = 0
	c.soften(x, y, 0)
	return true
}

func (c *Canvas) soften(x, y int, v byte) {
	for _, d := range [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}} {
		nx, ny := x+d[0], y+d[1]
		if inRange(nx, ny) && c.Pixels[ny][nx] != Full {
			c.Pixels[ny][nx] = v
		}
	}
}

// Clear 清空画板
func (c *Canvas) Clear() {
	c.Pixels = [Side][Side]byte{}
}

// Input 将位图按行展开并归一化到 [0, 1]，可直接作为网络输入
func (c *Canvas) Input() []float64 {
	in := make([]float64, 0, Side*Side)
	for _, row := range c.Pixels {
		for _, v := range row {
			in = append(in, float64(v)/Full)
		}
	}
	return in
}
