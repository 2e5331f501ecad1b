package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNaked(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			"symbol absorbs its operands",
			`Area = \pi r^2`,
			[]Segment{{Plain, "Area = "}, {InlineMath, `\pi r^2`}},
		},
		{
			"run stops at prose",
			`\pi is about 3.14`,
			[]Segment{{InlineMath, `\pi`}, {Plain, " is about 3.14"}},
		},
		{
			"fraction",
			`\frac{1}{2} of the cake`,
			[]Segment{{InlineMath, `\frac{1}{2}`}, {Plain, " of the cake"}},
		},
		{
			"nested braces",
			`\frac{\sqrt{2}}{3}`,
			[]Segment{{InlineMath, `\frac{\sqrt{2}}{3}`}},
		},
		{
			"root with index",
			`\sqrt[3]{8} = 2`,
			[]Segment{{InlineMath, `\sqrt[3]{8} = 2`}},
		},
		{
			"symbols inside text argument stay put",
			`The \text{speed \alpha} is`,
			[]Segment{{Plain, "The "}, {InlineMath, `\text{speed \alpha}`}, {Plain, " is"}},
		},
		{
			"chained symbols and trailing period",
			`\alpha + \beta = 1.`,
			[]Segment{{InlineMath, `\alpha + \beta = 1`}, {Plain, "."}},
		},
		{
			"run never ends on an operator",
			`\alpha - particle`,
			[]Segment{{InlineMath, `\alpha`}, {Plain, " - particle"}},
		},
		{
			"longer identifier is left alone",
			`\alphabet soup`,
			[]Segment{{Plain, `\alphabet soup`}},
		},
		{
			"bare symbol followed by brace is left alone",
			`\sin{x}`,
			[]Segment{{Plain, `\sin{x}`}},
		},
		{
			"unbalanced argument is left alone",
			`\frac{1}{2`,
			[]Segment{{Plain, `\frac{1}{2`}},
		},
		{
			"environment becomes display math",
			"See\n\\begin{pmatrix} a & b \\\\ c & d \\end{pmatrix}\nok",
			[]Segment{
				{Plain, "See\n"},
				{DisplayMath, `\begin{pmatrix} a & b \\ c & d \end{pmatrix}`},
				{Plain, "\nok"},
			},
		},
		{
			"less than stays in the run",
			`\alpha < 5`,
			[]Segment{{InlineMath, `\alpha < 5`}},
		},
		{
			"html tag ends the run",
			`\alpha <b>bold</b>`,
			[]Segment{{InlineMath, `\alpha`}, {Plain, " <b>bold</b>"}},
		},
		{
			"closing tag ends the run",
			`\beta x </i>`,
			[]Segment{{InlineMath, `\beta x`}, {Plain, " </i>"}},
		},
		{
			"unknown environment",
			`\begin{itemize}x\end{itemize}`,
			[]Segment{{Plain, `\begin{itemize}x\end{itemize}`}},
		},
		{
			"scripts on big operators",
			`\sum_{i=1}^n i`,
			[]Segment{{InlineMath, `\sum_{i=1}^n i`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapNaked(Segment{Kind: Plain, Value: tt.in}))
		})
	}
}

func TestWrapNakedLeavesMathAlone(t *testing.T) {
	seg := Segment{Kind: InlineMath, Value: `\pi r^2`}
	assert.Equal(t, []Segment{seg}, WrapNaked(seg))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Let \(x\) be \alpha`, `Let $x$ be $\alpha$`},
		{"$$x^2 + y^2 = z^2$$", "$$x^2 + y^2 = z^2$$"},
		{`$\pi$ and \pi`, `$\pi$ and $\pi$`},
		{"\\begin{cases} 1 \\end{cases}", "$$\\begin{cases} 1 \\end{cases}$$"},
		{"no math here", "no math here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}
