package artifact

import (
	"math"
	"reflect"
)

// Sanitize clears non-finite floats from the artifact in place, since
// encoding/json refuses NaN and Infinity outright and one poisoned upstream
// float must not cost the whole artifact. Nullable floats become null, value
// floats become zero. The pipeline calls this once at assembly so the disk
// writer, the run store, and the publisher all encode the same payload.
func Sanitize(a *RunArtifact) {
	sanitizeFloats(reflect.ValueOf(a).Elem())
}

func sanitizeFloats(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if v.Type().Elem().Kind() == reflect.Float64 {
			if !isFinite(v.Elem().Float()) && v.CanSet() {
				v.Set(reflect.Zero(v.Type()))
			}
			return
		}
		sanitizeFloats(v.Elem())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				sanitizeFloats(f)
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			sanitizeFloats(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Elem().Kind() != reflect.Float64 {
			return
		}
		for _, k := range v.MapKeys() {
			if !isFinite(v.MapIndex(k).Float()) {
				v.SetMapIndex(k, reflect.Zero(v.Type().Elem()))
			}
		}
	case reflect.Float64:
		if !isFinite(v.Float()) && v.CanSet() {
			v.SetFloat(0)
		}
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
