package scope_test

import (
	"fmt"

	"github.com/neilo40/scopewave/internal/scope"
)

func ExampleParseDataFormat() {
	for _, desc := range []string{"ASCII", "u1", ">i1", ">u2"} {
		f, err := scope.ParseDataFormat(desc)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(f)
	}
	// Output:
	// ascii
	// <u1
	// <i1
	// >u2
}

func ExampleScale() {
	p := &scope.Preamble{
		Format:      scope.Binary(scope.Unsigned, 1, scope.LittleEndian),
		Points:      3,
		XIncrement:  2e-9,
		YMultiplier: 0.02,
		YOffset:     128,
	}
	w, _ := scope.Scale([]float64{100, 150, 200}, p)
	for _, s := range w {
		fmt.Printf("%.1e %.2f\n", s.T, s.V)
	}
	// Output:
	// 0.0e+00 -0.56
	// 2.0e-09 0.44
	// 4.0e-09 1.44
}
