/*
 * Copyright 2024 Qualcomm Innovation Center, Inc. and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TypeCode enumerates element type families. The numeric values follow the
// DLPack convention so device runtimes can consume them directly.
type TypeCode uint8

const (
	KindInt TypeCode = iota
	KindUInt
	KindFloat
	KindBFloat
)

// DType describes the element type of a tensor: a type family, the bit width
// of one element and the number of vector lanes. Lanes > 1 describes
// vectorized storage, e.g. float32x4 for a texture channel of four floats.
type DType struct {
	Code  TypeCode
	Bits  int
	Lanes int
}

// Common element types.
var (
	Int8     = DType{Code: KindInt, Bits: 8, Lanes: 1}
	Int32    = DType{Code: KindInt, Bits: 32, Lanes: 1}
	Int64    = DType{Code: KindInt, Bits: 64, Lanes: 1}
	UInt8    = DType{Code: KindUInt, Bits: 8, Lanes: 1}
	Float16  = DType{Code: KindFloat, Bits: 16, Lanes: 1}
	Float32  = DType{Code: KindFloat, Bits: 32, Lanes: 1}
	Float64  = DType{Code: KindFloat, Bits: 64, Lanes: 1}
	BFloat16 = DType{Code: KindBFloat, Bits: 16, Lanes: 1}
)

// WithLanes returns a copy of d with the given number of vector lanes.
func (d DType) WithLanes(lanes int) DType {
	d.Lanes = lanes
	return d
}

// ElemBytes returns the storage size of one (possibly vectorized) element,
// rounded up to whole bytes.
func (d DType) ElemBytes() int64 {
	return (int64(d.Bits)*int64(d.Lanes) + 7) / 8
}

func (c TypeCode) String() string {
	switch c {
	case KindInt:
		return "int"
	case KindUInt:
		return "uint"
	case KindFloat:
		return "float"
	case KindBFloat:
		return "bfloat"
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

func (d DType) String() string {
	s := fmt.Sprintf("%s%d", d.Code, d.Bits)
	if d.Lanes > 1 {
		s += fmt.Sprintf("x%d", d.Lanes)
	}
	return s
}

// ParseDType parses strings like "float32", "int8" or "float16x4".
func ParseDType(s string) (DType, error) {
	orig := s
	lanes := 1
	if idx := strings.LastIndexByte(s, 'x'); idx >= 0 {
		n, err := strconv.Atoi(s[idx+1:])
		if err != nil || n <= 0 {
			return DType{}, errors.Errorf("Invalid lanes in dtype %q", orig)
		}
		lanes = n
		s = s[:idx]
	}

	var code TypeCode
	switch {
	case strings.HasPrefix(s, "uint"):
		code, s = KindUInt, s[4:]
	case strings.HasPrefix(s, "int"):
		code, s = KindInt, s[3:]
	case strings.HasPrefix(s, "bfloat"):
		code, s = KindBFloat, s[6:]
	case strings.HasPrefix(s, "float"):
		code, s = KindFloat, s[5:]
	default:
		return DType{}, errors.Errorf("Unknown dtype %q", orig)
	}
	bits, err := strconv.Atoi(s)
	if err != nil || bits <= 0 {
		return DType{}, errors.Errorf("Invalid bit width in dtype %q", orig)
	}
	return DType{Code: code, Bits: bits, Lanes: lanes}, nil
}
