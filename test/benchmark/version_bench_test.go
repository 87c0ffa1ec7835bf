// Package benchmark contains Go benchmarks for the hot paths of the
// assistant: version ordering, tolerant POM parsing, the local repository
// scan and the snapshot segment format.
package benchmark

import (
	"fmt"
	"sort"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
)

// BenchmarkParseVersion measures parsing of version strings of varying shape.
func BenchmarkParseVersion(b *testing.B) {
	versions := []struct {
		name    string
		version string
	}{
		{"release", "3.11.0"},
		{"qualifier", "2.0.0-beta-3"},
		{"snapshot", "1.2.3-SNAPSHOT"},
		{"long", "1.0.0.20240105.1-rc-12-jre17"},
	}
	for _, v := range versions {
		b.Run(v.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = coordinate.ParseVersion(v.version)
			}
		})
	}
}

// BenchmarkSortVersions measures sorting the version list of one artifact.
func BenchmarkSortVersions(b *testing.B) {
	var raw []coordinate.Version
	for major := 0; major < 10; major++ {
		for minor := 0; minor < 20; minor++ {
			raw = append(raw, coordinate.ParseVersion(fmt.Sprintf("%d.%d.0", major, minor)))
			raw = append(raw, coordinate.ParseVersion(fmt.Sprintf("%d.%d.1-SNAPSHOT", major, minor)))
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vs := append([]coordinate.Version(nil), raw...)
		sort.Slice(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })
	}
}

// BenchmarkBetterVersion measures the best-version rule used by the local
// repository scan.
func BenchmarkBetterVersion(b *testing.B) {
	current := coordinate.ParseVersion("2.0-SNAPSHOT")
	candidate := coordinate.ParseVersion("1.9")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = coordinate.Better(current, candidate)
	}
}
