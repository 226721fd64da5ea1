package tasks

import (
	"encoding/json"
	"fmt"
	"math"
)

// argFloat 取第 i 个参数，缺省时返回 def
func argFloat(args []interface{}, i int, def float64) (float64, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	return toFloat(args[i])
}

// argInt 只接受整数值
func argInt(args []interface{}, i int, def int) (int, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	f, err := toFloat(args[i])
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("argument %d must be an integer, got %v", i, args[i])
	}
	return int(f), nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// number 整数值以 int64 返回，使 JSON 输出 15 而不是 15.0 之类的歧义
func number(f float64) interface{} {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
