// Package glbuild holds the GLSL vocabulary used to link shader patches:
// content types, port descriptors, source analysis and symbol renaming,
// plus helpers for appending GLSL literals to byte buffers.
package glbuild

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// VersionStr is the version directive prepended to programs compiled on desktop GL.
const VersionStr = "#version 330 core\n"

// Namespace prefixes every symbol a shader declares so that several shaders
// may be concatenated into a single translation unit.
type Namespace struct {
	Prefix string
}

// Qualify returns name prefixed by the namespace.
func (ns Namespace) Qualify(name string) string {
	return ns.Prefix + "_" + name
}

// AppendQualified appends the qualified form of name to dst.
func (ns Namespace) AppendQualified(dst []byte, name string) []byte {
	dst = append(dst, ns.Prefix...)
	dst = append(dst, '_')
	return append(dst, name...)
}

const decimalDigits = 9

// AppendFloat appends a GLSL float literal. Trailing zeroes are trimmed so 1 is
// written as "1." and 0.25 as "0.25".
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	// Finally trim zeroes.
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

// AppendFloats appends a sep separated list of float literals.
func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
			if sep == ',' {
				b = append(b, ' ')
			}
		}
	}
	return b
}

// AppendConstructor appends a constructor call such as "vec4(0., 0., 0., 1.)".
func AppendConstructor(b []byte, typename string, args ...float32) []byte {
	b = append(b, typename...)
	b = append(b, '(')
	b = AppendFloats(b, ',', '-', '.', args...)
	return append(b, ')')
}

// AppendVec2 appends a vec2 constructor for v.
func AppendVec2(b []byte, v ms2.Vec) []byte {
	return AppendConstructor(b, "vec2", v.X, v.Y)
}

// AppendVec3 appends a vec3 constructor for v.
func AppendVec3(b []byte, v ms3.Vec) []byte {
	arr := v.Array()
	return AppendConstructor(b, "vec3", arr[:]...)
}

// AppendUniformDecl appends "uniform <typename> <name>;\n".
func AppendUniformDecl(b []byte, typename, name string) []byte {
	b = append(b, "uniform "...)
	b = append(b, typename...)
	b = append(b, ' ')
	b = append(b, name...)
	return append(b, ";\n"...)
}

// AppendVarDecl appends a global variable declaration with an optional initializer.
func AppendVarDecl(b []byte, typename, name, init string) []byte {
	b = append(b, typename...)
	b = append(b, ' ')
	b = append(b, name...)
	if init != "" {
		b = append(b, " = "...)
		b = append(b, init...)
	}
	return append(b, ";\n"...)
}

// AppendLineDirective appends a #line directive so compiler errors map back to
// the line in the original shader source.
func AppendLineDirective(b []byte, line int) []byte {
	b = append(b, "#line "...)
	b = strconv.AppendInt(b, int64(line), 10)
	return append(b, '\n')
}

// Hash returns a non-cryptographic hash of b mixed with in.
func Hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}
