package kernel

import (
	"math"
	"testing"
)

func TestCompileActivation_Valid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		in   float32
		want float32
	}{
		{
			name: "identity",
			src:  "return x;",
			in:   0.25,
			want: 0.25,
		},
		{
			name: "constant",
			src:  "return 0.5;",
			in:   99,
			want: 0.5,
		},
		{
			name: "arithmetic precedence",
			src:  "return 1.0 + 2.0 * 3.0;",
			in:   0,
			want: 7,
		},
		{
			name: "parentheses",
			src:  "return (1.0 + 2.0) * 3.0;",
			in:   0,
			want: 9,
		},
		{
			name: "unary minus",
			src:  "return -x;",
			in:   0.5,
			want: -0.5,
		},
		{
			name: "abs builtin",
			src:  "return abs(x);",
			in:   -0.75,
			want: 0.75,
		},
		{
			name: "inverse gaussian",
			src:  "return -1./pow(2., (0.6*pow(x, 2.)))+1.;",
			in:   0,
			want: 0,
		},
		{
			name: "let binding",
			src:  "let y = x * 2.0; return y + 1.0;",
			in:   3,
			want: 7,
		},
		{
			name: "chained lets",
			src:  "let a = x + 1.0; let b = a * a; return b - a;",
			in:   1,
			want: 2,
		},
		{
			name: "clamp",
			src:  "return clamp(x, 0.0, 1.0);",
			in:   2.5,
			want: 1,
		},
		{
			name: "float suffix",
			src:  "return x * 2.0f;",
			in:   1.5,
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := CompileActivation(tt.src)
			if err != nil {
				t.Fatalf("CompileActivation(%q) error: %v", tt.src, err)
			}
			got := act.Eval(tt.in)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Eval(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompileActivation_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "empty", src: ""},
		{name: "whitespace only", src: "   "},
		{name: "missing return", src: "x + 1.0;"},
		{name: "missing semicolon", src: "return x"},
		{name: "unknown identifier", src: "return y;"},
		{name: "unknown function", src: "return textureLoad(x);"},
		{name: "wrong arity", src: "return abs(x, x);"},
		{name: "brace injection", src: "return x; } fn evil() { return 0.0;"},
		{name: "attribute injection", src: "return x; @compute"},
		{name: "string literal", src: "return \"x\";"},
		{name: "trailing tokens", src: "return x; return x;"},
		{name: "redeclared binding", src: "let x = 1.0; return x;"},
		{name: "unterminated call", src: "return abs(x;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileActivation(tt.src); err == nil {
				t.Errorf("CompileActivation(%q) = nil error, want error", tt.src)
			}
		})
	}
}

func TestActivation_Builtins(t *testing.T) {
	tests := []struct {
		src  string
		in   float32
		want float32
	}{
		{src: "return sqrt(x);", in: 4, want: 2},
		{src: "return pow(x, 3.0);", in: 2, want: 8},
		{src: "return max(x, 0.5);", in: 0.1, want: 0.5},
		{src: "return min(x, 0.5);", in: 0.9, want: 0.5},
		{src: "return step(0.5, x);", in: 0.6, want: 1},
		{src: "return step(0.5, x);", in: 0.4, want: 0},
		{src: "return sign(x);", in: -3, want: -1},
		{src: "return fract(x);", in: 1.25, want: 0.25},
		{src: "return mix(0.0, 10.0, x);", in: 0.3, want: 3},
		{src: "return floor(x);", in: 1.9, want: 1},
		{src: "return ceil(x);", in: 1.1, want: 2},
		{src: "return tanh(x);", in: 0, want: 0},
		{src: "return exp2(x);", in: 3, want: 8},
		{src: "return inverseSqrt(x);", in: 4, want: 0.5},
		{src: "return smoothstep(0.0, 1.0, x);", in: 0.5, want: 0.5},
	}

	for _, tt := range tests {
		act, err := CompileActivation(tt.src)
		if err != nil {
			t.Fatalf("CompileActivation(%q) error: %v", tt.src, err)
		}
		got := act.Eval(tt.in)
		if math.Abs(float64(got-tt.want)) > 1e-5 {
			t.Errorf("%q: Eval(%v) = %v, want %v", tt.src, tt.in, got, tt.want)
		}
	}
}

func TestActivation_Source(t *testing.T) {
	const src = "return tanh(x);"
	act, err := CompileActivation(src)
	if err != nil {
		t.Fatalf("CompileActivation error: %v", err)
	}
	if got := act.Source(); got != src {
		t.Errorf("Source() = %q, want %q", got, src)
	}
}
