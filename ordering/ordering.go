// Package ordering sorts records by the string value found at a dotted attribute path
package ordering

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// By returns a new slice holding records ordered ascending by the value at path,
// compared with the root collation. The input is left untouched.
//
// Path segments are separated by dots ("book.title") and match a struct field's
// json name or, failing that, its Go name case-insensitively. Map values are
// looked up by key. Every record must resolve the full path; By panics otherwise.
func By[T any](records []T, path string) []T {
	return ByLocale(records, path, language.Und)
}

// ByLocale is By with an explicit collation locale.
func ByLocale[T any](records []T, path string, tag language.Tag) []T {
	out := slices.Clone(records)
	if len(out) < 2 {
		return out
	}

	segments := strings.Split(path, ".")
	type keyed struct {
		key    string
		record T
	}
	items := make([]keyed, len(out))
	for i, r := range out {
		items[i] = keyed{key: resolve(reflect.ValueOf(r), segments, path), record: r}
	}

	// collate.Collator is not safe for concurrent use; one per call.
	c := collate.New(tag)
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(items[i].key, items[j].key) < 0
	})

	for i := range items {
		out[i] = items[i].record
	}
	return out
}

// Value resolves path on record and returns it as a string, panicking on unresolvable paths.
func Value(record any, path string) string {
	return resolve(reflect.ValueOf(record), strings.Split(path, "."), path)
}

func resolve(v reflect.Value, segments []string, path string) string {
	for _, seg := range segments {
		v = indirect(v, path)
		switch v.Kind() {
		case reflect.Struct:
			f, ok := field(v, seg)
			if !ok {
				panic(fmt.Sprintf("ordering: %q: no field %q on %s", path, seg, v.Type()))
			}
			v = f
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				panic(fmt.Sprintf("ordering: %q: map %s is not keyed by string", path, v.Type()))
			}
			m := v.MapIndex(reflect.ValueOf(seg).Convert(v.Type().Key()))
			if !m.IsValid() {
				panic(fmt.Sprintf("ordering: %q: key %q missing", path, seg))
			}
			v = m
		default:
			panic(fmt.Sprintf("ordering: %q: cannot descend into %s at %q", path, v.Kind(), seg))
		}
	}
	return leaf(indirect(v, path))
}

func indirect(v reflect.Value, path string) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			panic(fmt.Sprintf("ordering: %q: nil value on path", path))
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		panic(fmt.Sprintf("ordering: %q: invalid value on path", path))
	}
	return v
}

func field(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.IsExported() && strings.EqualFold(sf.Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func leaf(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v.Interface())
}
