package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout JSON 类后端存储时间的格式：UTC、固定宽度，字典序即时间序
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// normalizeValue 把 Go 值转换为 JSON 后端可排序、可比较的形式
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(TimeLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(TimeLayout)
	case Document:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeMap(item)
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

// withoutNulls 去掉值为 nil 的顶层字段（nil 表示删除字段）
func withoutNulls(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// mergeFields 浅合并：nil 删除字段，其余覆盖
func mergeFields(dst, fields Document) Document {
	out := dst.Clone()
	for k, v := range fields {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func marshalDocument(doc Document) ([]byte, error) {
	data, err := json.Marshal(normalizeMap(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

func unmarshalDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Int64Value 读取整数字段，兼容 int/int64/float64/json.Number/数字字符串
func Int64Value(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(math.Floor(float64(n))), true
	case float64:
		return int64(math.Floor(n)), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(math.Floor(f)), true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// TimeValue 读取时间字段，兼容 time.Time 与字符串格式
func TimeValue(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	case map[string]interface{}:
		// Firestore REST/JSON 导出的 {seconds, nanoseconds}
		sec, ok := Int64Value(t["seconds"])
		if !ok {
			sec, ok = Int64Value(t["_seconds"])
		}
		if ok {
			nsec, _ := Int64Value(t["nanoseconds"])
			return time.Unix(sec, nsec).UTC(), true
		}
	}
	return time.Time{}, false
}

// StringValue 读取字符串字段
func StringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// BoolValue 读取布尔字段
func BoolValue(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// StringSliceValue 读取字符串数组字段
func StringSliceValue(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MapSliceValue 读取对象数组字段
func MapSliceValue(v interface{}) []map[string]interface{} {
	switch list := v.(type) {
	case []map[string]interface{}:
		return list
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			switch m := item.(type) {
			case map[string]interface{}:
				out = append(out, m)
			case Document:
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// typeRank nil < bool < number < string < other，与 Firestore 的跨类型顺序一致
func typeRank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := floatValue(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	return 4
}

// compareValues 比较两个已规范化的值
func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := floatValue(a)
		fb, _ := floatValue(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

// valuesEqual 过滤比较，两边都先规范化
func valuesEqual(stored, want interface{}) bool {
	a, b := normalizeValue(stored), normalizeValue(want)
	if typeRank(a) != typeRank(b) || typeRank(a) == 4 {
		return false
	}
	return compareValues(a, b) == 0
}

func matchesFilters(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}
