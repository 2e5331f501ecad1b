package render

import "strings"

// Commands taking two braced arguments.
var bracedTwo = set(
	"frac", "dfrac", "tfrac", "cfrac",
	"binom", "dbinom", "tbinom",
	"overset", "underset", "stackrel",
)

// Commands taking one braced argument. \sqrt also accepts an optional
// [index] before it.
var bracedOne = set(
	"sqrt",
	"overline", "underline", "overbrace", "underbrace",
	"hat", "widehat", "bar", "vec", "dot", "ddot", "tilde", "widetilde",
	"overrightarrow", "overleftarrow", "cancel", "boxed",
	"text", "textbf", "textit", "mathrm", "mathbf", "mathit", "mathsf",
	"mathbb", "mathcal", "mathfrak", "boldsymbol", "operatorname",
)

// Block environments. They are always wrapped as display math.
var environments = set(
	"matrix", "pmatrix", "bmatrix", "Bmatrix", "vmatrix", "Vmatrix", "smallmatrix",
	"array", "cases", "dcases",
	"align", "align*", "aligned", "alignat", "alignat*",
	"gather", "gather*", "gathered", "split",
	"equation", "equation*", "eqnarray", "eqnarray*",
)

// Zero-argument commands.
var symbols = set(
	// greek
	"alpha", "beta", "gamma", "delta", "epsilon", "varepsilon", "zeta", "eta",
	"theta", "vartheta", "iota", "kappa", "lambda", "mu", "nu", "xi", "pi",
	"varpi", "rho", "varrho", "sigma", "varsigma", "tau", "upsilon", "phi",
	"varphi", "chi", "psi", "omega",
	"Gamma", "Delta", "Theta", "Lambda", "Xi", "Pi", "Sigma", "Upsilon",
	"Phi", "Psi", "Omega",
	// relations and operators
	"times", "div", "cdot", "pm", "mp", "ast", "star", "circ", "bullet",
	"leq", "geq", "le", "ge", "neq", "ne", "approx", "equiv", "sim", "simeq",
	"cong", "propto", "ll", "gg", "mid", "parallel", "perp", "angle",
	"in", "notin", "ni", "subset", "subseteq", "supset", "supseteq",
	"cup", "cap", "setminus", "emptyset", "varnothing",
	"forall", "exists", "nexists", "neg", "land", "lor", "wedge", "vee",
	"infty", "partial", "nabla", "prime",
	"sum", "prod", "coprod", "int", "iint", "iiint", "oint",
	"lim", "limsup", "liminf", "max", "min", "sup", "inf",
	"ldots", "cdots", "vdots", "ddots", "dots",
	"left", "right", "quad", "qquad",
	// arrows
	"to", "gets", "rightarrow", "leftarrow", "leftrightarrow",
	"Rightarrow", "Leftarrow", "Leftrightarrow", "longrightarrow",
	"longleftarrow", "Longrightarrow", "implies", "iff", "mapsto",
	"uparrow", "downarrow",
	// named functions
	"sin", "cos", "tan", "cot", "sec", "csc",
	"arcsin", "arccos", "arctan", "sinh", "cosh", "tanh",
	"log", "ln", "lg", "exp", "det", "dim", "ker", "gcd", "deg", "arg",
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// WrapNaked splits a plain segment into plain and math segments, turning
// every recognised bare LaTeX construct into math. Environments become
// display math, everything else inline math. Math segments are returned
// unchanged.
//
// Braced commands and environments are tried before bare symbols at every
// backslash, and the scan resumes after each construct, so symbols inside
// an argument are never wrapped on their own.
func WrapNaked(seg Segment) []Segment {
	if seg.Kind != Plain || !strings.Contains(seg.Value, `\`) {
		return []Segment{seg}
	}

	s := seg.Value
	sc := newScanner(s)
	var out []Segment
	last := 0
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '\\')
		if j < 0 {
			break
		}
		i += j

		if end, ok := sc.environmentAt(i); ok {
			out = appendPlain(out, s[last:i])
			out = append(out, Segment{Kind: DisplayMath, Value: s[i:end]})
			i, last = end, end
			continue
		}
		if end, ok := sc.commandAt(i); ok {
			end = sc.extendRun(end)
			out = appendPlain(out, s[last:i])
			out = append(out, Segment{Kind: InlineMath, Value: s[i:end]})
			i, last = end, end
			continue
		}
		i = skipCommand(s, i)
	}

	return appendPlain(out, s[last:])
}

// Normalize returns text with every math region written with dollar
// delimiters and naked LaTeX wrapped.
func Normalize(text string) string {
	return Join(wrapAll(Segments(text)))
}

func wrapAll(segs []Segment) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, seg := range segs {
		out = append(out, WrapNaked(seg)...)
	}
	return out
}

func appendPlain(segs []Segment, s string) []Segment {
	if s == "" {
		return segs
	}
	if n := len(segs); n > 0 && segs[n-1].Kind == Plain {
		segs[n-1].Value += s
		return segs
	}
	return append(segs, Segment{Kind: Plain, Value: s})
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// commandName returns the letters following the backslash at s[i].
func commandName(s string, i int) string {
	j := i + 1
	for j < len(s) && isLetter(s[j]) {
		j++
	}
	return s[i+1 : j]
}

func skipCommand(s string, i int) int {
	if name := commandName(s, i); name != "" {
		return i + 1 + len(name)
	}
	return min(i+2, len(s))
}

// bracedArg returns the offset just past a balanced {...} group starting at
// s[p]. Arguments never span lines.
func (sc *scanner) bracedArg(p int) (int, bool) {
	if p >= len(sc.s) || sc.s[p] != '{' {
		return 0, false
	}
	end, ok := sc.braces[p]
	return end, ok
}

// commandAt matches a braced command or a bare symbol at s[i] and returns
// the offset just past it.
func (sc *scanner) commandAt(i int) (int, bool) {
	s := sc.s
	name := commandName(s, i)
	if name == "" {
		return 0, false
	}
	p := i + 1 + len(name)

	switch {
	case bracedTwo[name]:
		q, ok := sc.bracedArg(p)
		if !ok {
			return 0, false
		}
		return sc.bracedArg(q)
	case bracedOne[name]:
		if name == "sqrt" && p < len(s) && s[p] == '[' {
			k := sc.find.index("]", p)
			if k < 0 {
				return 0, false
			}
			if nl := sc.find.index("\n", p); nl >= 0 && nl < k {
				return 0, false
			}
			p = k + 1
		}
		return sc.bracedArg(p)
	case symbols[name]:
		if p < len(s) && s[p] == '{' {
			return 0, false
		}
		return p, true
	}
	return 0, false
}

// environmentAt matches \begin{env}...\end{env} at s[i] for a catalogued
// env, honouring nested blocks of the same env.
func (sc *scanner) environmentAt(i int) (int, bool) {
	end, ok := sc.envs[i]
	return end, ok
}

// extendRun grows a naked construct ending at p over the math-like tokens
// that follow it on the same line: scripts, numbers, operators, single
// letter variables and further catalogued commands. "\pi r^2" is one run.
// A run never ends on a bare operator.
func (sc *scanner) extendRun(p int) int {
	s := sc.s
	for cur := p; ; {
		q := cur
		for q < len(s) && (s[q] == ' ' || s[q] == '\t') {
			q++
		}
		if q >= len(s) {
			return p
		}

		if s[q] == '\\' {
			if _, ok := sc.environmentAt(q); ok {
				return p
			}
			end, ok := sc.commandAt(q)
			if !ok {
				return p
			}
			p, cur = end, end
			continue
		}

		w := q
		for w < len(s) && !strings.ContainsRune(" \t\r\n\\$", rune(s[w])) {
			w++
		}
		word := strings.TrimRight(s[q:w], ".,;:!?")
		if word == "" || !isMathWord(word) {
			return p
		}
		cur = q + len(word)
		if !isOperator(word) {
			p = cur
		}
		if len(word) < w-q {
			// sentence punctuation ends the run
			return p
		}
	}
}

func isOperator(w string) bool {
	return strings.Trim(w, "+-*/=<>()[]|'.,!") == ""
}

func isMathWord(w string) bool {
	letters := 0
	for i := 0; i < len(w); i++ {
		c := w[i]
		switch {
		case isLetter(c):
			letters++
		case c >= '0' && c <= '9':
		case strings.IndexByte("+-*/=<>()[]|'.,!^_{}", c) >= 0:
		default:
			return false
		}
	}
	// an HTML tag is prose, while a bare < stays an operator
	if strings.Contains(w, "<") && strings.Contains(w, ">") {
		return false
	}
	for i := strings.IndexByte(w, '<'); i >= 0 && i+1 < len(w); {
		if c := w[i+1]; isLetter(c) || c == '/' || c == '!' {
			return false
		}
		k := strings.IndexByte(w[i+1:], '<')
		if k < 0 {
			break
		}
		i += 1 + k
	}
	if strings.ContainsAny(w, "^_") {
		return true
	}
	if letters == 0 {
		return true
	}
	// lone English words that happen to be one letter
	return letters == 1 && w != "a" && w != "A" && w != "I"
}
