/*
 *	pvrpc carries typed method calls over ordered packet channels.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package reflectutil

import (
	"encoding"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// To converts a decoded payload to T
func To[T any](in any) (T, error) {
	var out T
	if in == nil {
		return out, nil
	}

	// If payload is already T, there is nothing to convert
	if v, ok := in.(T); ok {
		return v, nil
	}

	val, err := Convert(reflect.ValueOf(in), reflect.TypeOf(&out).Elem())
	if err != nil {
		return out, err
	}
	return val.Interface().(T), nil
}

// Convert attempts to convert the given value to the given type
func Convert(in reflect.Value, toType reflect.Type) (reflect.Value, error) {
	// Get input type
	inType := in.Type()

	// If input is already the desired type, return
	if inType == toType {
		return in, nil
	}

	// If the desired type is an interface satisfied by the input
	if toType.Kind() == reflect.Interface && inType.Implements(toType) {
		out := reflect.New(toType).Elem()
		out.Set(in)
		return out, nil
	}

	// If the output type is a pointer to the input type
	if reflect.PointerTo(inType) == toType {
		if in.CanAddr() {
			// Return pointer to input
			return in.Addr(), nil
		}

		inPtrVal := reflect.New(inType)
		inPtrVal.Elem().Set(in)
		return inPtrVal, nil
	}

	// If input is a pointer pointing to the output type
	if inType.Kind() == reflect.Ptr && inType.Elem() == toType {
		// Return value being pointed at by input
		return reflect.Indirect(in), nil
	}

	// If input can be converted to desired type, convert and return.
	// Integers are not converted to strings, as that would
	// produce a rune rather than the number.
	if in.CanConvert(toType) && !(isNumber(inType.Kind()) && toType.Kind() == reflect.String) {
		return in.Convert(toType), nil
	}

	// Create new value of desired type
	to := reflect.New(toType).Elem()

	// If type is a pointer
	if to.Kind() == reflect.Ptr {
		// Initialize value
		to.Set(reflect.New(to.Type().Elem()))
	}

	// Unmarshalers are usually implemented on a pointer receiver
	target := to.Addr().Interface()
	if to.Kind() == reflect.Ptr {
		target = to.Interface()
	}

	switch val := in.Interface().(type) {
	case string:
		// If desired type satisfies text unmarshaler
		if u, ok := target.(encoding.TextUnmarshaler); ok {
			// Use text unmarshaler to get value
			err := u.UnmarshalText([]byte(val))
			if err != nil {
				return reflect.Value{}, err
			}

			// Return unmarshaled value
			return to, nil
		}
	case []byte:
		// If desired type satisfies binary unmarshaler
		if u, ok := target.(encoding.BinaryUnmarshaler); ok {
			// Use binary unmarshaler to get value
			err := u.UnmarshalBinary(val)
			if err != nil {
				return reflect.Value{}, err
			}

			// Return unmarshaled value
			return to, nil
		}
	}

	// If input is a map
	if in.Kind() == reflect.Map {
		// Use mapstructure to decode value
		err := decode(in.Interface(), target)
		if err == nil {
			return to, nil
		}
		return to, fmt.Errorf("cannot convert %s to %s: %w", inType, toType, err)
	}

	// If input is a slice of any, and output is an array or slice
	if inType == reflect.TypeOf([]any{}) &&
		(to.Kind() == reflect.Slice || to.Kind() == reflect.Array) {
		// Use ConvertSlice to convert value
		return reflect.ValueOf(ConvertSlice(
			in.Interface().([]any),
			toType,
		)), nil
	}

	return to, fmt.Errorf("cannot convert %s to %s", inType, toType)
}

// ConvertSlice converts []any to an array or slice, as provided
// in the "to" argument.
func ConvertSlice(in []any, to reflect.Type) any {
	// Create new value for output
	out := reflect.New(to).Elem()

	// If output value is a slice
	if out.Kind() == reflect.Slice {
		// Get type of slice elements
		outType := out.Type().Elem()

		// For every value provided
		for i := 0; i < len(in); i++ {
			// Create new output type
			outVal := reflect.New(outType).Elem()

			if in[i] != nil {
				newVal, err := Convert(reflect.ValueOf(in[i]), outType)
				if err == nil {
					outVal.Set(newVal)
				}
			}

			// Append output value to slice
			out = reflect.Append(out, outVal)
		}
	} else if out.Kind() == reflect.Array && out.Len() == len(in) {
		//If output type is array and lengths match

		// For every input value
		for i := 0; i < len(in); i++ {
			if in[i] == nil {
				continue
			}

			// Get matching output index
			outVal := out.Index(i)
			// Convert input value, leaving the zero value on failure
			newVal, err := Convert(reflect.ValueOf(in[i]), outVal.Type())
			if err == nil {
				outVal.Set(newVal)
			}
		}
	}

	// Return created value
	return out.Interface()
}

// decode uses mapstructure to decode a generic map into out.
// Struct fields are matched using their json tags, which
// are the same tags the codecs use.
func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
