// Package builders holds the static catalog of CI builder identifiers whose
// CPU-utilization series are collected.
package builders

import (
	"slices"
	"strings"
)

// AltSuffix marks builders whose artifacts are published under the
// alternate-build path prefix.
const AltSuffix = "-alt"

// Name identifies one CI builder configuration.
type Name string

// String implements fmt.Stringer.
func (n Name) String() string { return string(n) }

// HasSuffix reports whether the builder name ends with suffix.
func (n Name) HasSuffix(suffix string) bool {
	return suffix != "" && strings.HasSuffix(string(n), suffix)
}

// catalog is ordered the way builders are enumerated for each commit.
var catalog = []Name{
	"aarch64-gnu",
	"arm-android",
	"armhf-gnu",
	"dist-aarch64-apple",
	"dist-aarch64-linux",
	"dist-aarch64-msvc",
	"dist-android",
	"dist-arm-linux",
	"dist-armhf-linux",
	"dist-armv7-linux",
	"dist-i586-gnu-i586-i686-musl",
	"dist-i686-linux",
	"dist-i686-mingw",
	"dist-i686-msvc",
	"dist-mips-linux",
	"dist-mips64-linux",
	"dist-mips64el-linux",
	"dist-mipsel-linux",
	"dist-powerpc-linux",
	"dist-powerpc64-linux",
	"dist-powerpc64le-linux",
	"dist-riscv64-linux",
	"dist-s390x-linux",
	"dist-various-1",
	"dist-various-2",
	"dist-x86_64-apple",
	"dist-apple-various",
	"dist-x86_64-apple-alt",
	"dist-x86_64-freebsd",
	"dist-x86_64-illumos",
	"dist-x86_64-linux",
	"dist-x86_64-linux-alt",
	"dist-x86_64-mingw",
	"dist-x86_64-msvc",
	"dist-x86_64-musl",
	"dist-x86_64-netbsd",
	"i686-gnu-nopt",
	"i686-gnu",
	"i686-mingw-1",
	"i686-mingw-2",
	"i686-msvc-1",
	"i686-msvc-2",
	"mingw-check",
	"test-various",
	"wasm32",
	"x86_64-apple",
	"x86_64-gnu-aux",
	"x86_64-gnu-debug",
	"x86_64-gnu-distcheck",
	"x86_64-gnu-llvm-12",
	"x86_64-gnu-nopt",
	"x86_64-gnu-stable",
	"x86_64-gnu-tools",
	"x86_64-gnu",
	"x86_64-mingw-1",
	"x86_64-mingw-2",
	"x86_64-msvc-1",
	"x86_64-msvc-2",
	"x86_64-msvc-cargo",
	"x86_64-msvc-tools",
}

// Catalog returns a copy of the builder catalog in enumeration order.
func Catalog() []Name {
	return slices.Clone(catalog)
}
