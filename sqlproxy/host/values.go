package host

import (
	"math"
	"time"

	"github.com/tomyedwab/sqlbridge/value"
)

// DriverArgs turns encoded engine parameters into values SQLite can bind.
// Whole numbers bind as integers; lists and objects bind as JSON text.
func DriverArgs(params []any) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = driverArg(value.Decode(p))
	}
	return args
}

func driverArg(v value.Value) any {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNumber:
		n, _ := v.AsNumber()
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindList, value.KindObject:
		return v.String()
	}
	return nil
}

// ProcessRowValues converts scanned column values to engine values.
func ProcessRowValues(rawRow []any) []any {
	processedRow := make([]any, len(rawRow))
	for i, val := range rawRow {
		switch v := val.(type) {
		case nil:
			processedRow[i] = nil
		case []byte:
			processedRow[i] = string(v)
		case time.Time:
			processedRow[i] = v.Format(time.RFC3339Nano)
		case int64:
			processedRow[i] = float64(v)
		case int:
			processedRow[i] = float64(v)
		case float32:
			processedRow[i] = float64(v)
		default:
			processedRow[i] = v
		}
	}
	return processedRow
}
