package pysig

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractFunction(t *testing.T) {
	src := `def add(a: int, b: int = 0) -> int:
    """Add two numbers.

    Args:
        a: First operand
        b: Second operand
    """
    return a + b
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Extract() returned %d signatures, want 1", len(sigs))
	}

	sig := sigs[0]
	if sig.Name != "add" {
		t.Fatalf("name = %q, want %q", sig.Name, "add")
	}
	if sig.ReturnType != "int" {
		t.Fatalf("return type = %q, want %q", sig.ReturnType, "int")
	}
	if sig.Description != "Add two numbers." {
		t.Fatalf("description = %q, want %q", sig.Description, "Add two numbers.")
	}

	want := []Param{
		{Name: "a", Type: "int", Description: "First operand"},
		{Name: "b", Type: "int", Default: &Literal{Kind: LiteralNumber, Num: "0"}, Description: "Second operand"},
	}
	if !reflect.DeepEqual(sig.Params, want) {
		t.Fatalf("params = %+v, want %+v", sig.Params, want)
	}
}

func TestExtractClassMethods(t *testing.T) {
	src := `class PomodoroTimer:
    """Manages timed rounds."""

    def __init__(self):
        self.running = False

    def start(self, duration: int = 25, phase: str = "implement") -> str:
        """Start a new timer.

        Args:
            duration: Duration in minutes
            phase: Session phase label
        """
        return "ok"

    def __repr__(self):
        return "timer"
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Extract() returned %d signatures, want 1", len(sigs))
	}

	sig := sigs[0]
	if sig.Name != "PomodoroTimer.start" {
		t.Fatalf("name = %q, want %q", sig.Name, "PomodoroTimer.start")
	}
	want := []Param{
		{Name: "duration", Type: "int", Default: &Literal{Kind: LiteralNumber, Num: "25"}, Description: "Duration in minutes"},
		{Name: "phase", Type: "str", Default: &Literal{Kind: LiteralString, Str: "implement"}, Description: "Session phase label"},
	}
	if !reflect.DeepEqual(sig.Params, want) {
		t.Fatalf("params = %+v, want %+v", sig.Params, want)
	}
}

func TestExtractScopeRules(t *testing.T) {
	src := `def fetch(url: str) -> str:
    def helper(x):
        return x
    return url

class Helper:
    def run(self, count: int):
        return count

async def poll():
    pass
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	var names []string
	for _, sig := range sigs {
		names = append(names, sig.Name)
	}
	wantNames := []string{"fetch", "Helper.run"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Fatalf("names = %v, want %v", names, wantNames)
	}

	top := TopLevel(sigs)
	if len(top) != 1 || top[0].Name != "fetch" {
		t.Fatalf("TopLevel() = %+v, want only fetch", top)
	}
}

func TestExtractMultilineHeader(t *testing.T) {
	src := `def configure(
    host: str,
    port: int = 8080,
    tags: list = [],
):
    pass
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("Extract() returned %d signatures, want 1", len(sigs))
	}

	want := []Param{
		{Name: "host", Type: "str"},
		{Name: "port", Type: "int", Default: &Literal{Kind: LiteralNumber, Num: "8080"}},
		{Name: "tags", Type: "list", Default: &Literal{Kind: LiteralList}},
	}
	if !reflect.DeepEqual(sigs[0].Params, want) {
		t.Fatalf("params = %+v, want %+v", sigs[0].Params, want)
	}
}

func TestExtractIgnoresStringsAndComments(t *testing.T) {
	src := `TEMPLATE = """
def not_real(x):
    pass
"""

# def commented(y):

def real(value: str = "# not a comment") -> str:
    return value
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(sigs) != 1 || sigs[0].Name != "real" {
		t.Fatalf("signatures = %+v, want only real", sigs)
	}
	def := sigs[0].Params[0].Default
	if def == nil || def.Str != "# not a comment" {
		t.Fatalf("default = %+v, want string %q", def, "# not a comment")
	}
}

func TestExtractDuplicateKeepsLast(t *testing.T) {
	src := `def first():
    pass

def ping(a: int):
    pass

def ping(a: str):
    pass
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("Extract() returned %d signatures, want 2", len(sigs))
	}
	if sigs[0].Name != "first" || sigs[1].Name != "ping" {
		t.Fatalf("order = [%s, %s], want [first, ping]", sigs[0].Name, sigs[1].Name)
	}
	if got := sigs[1].Params[0].Type; got != "str" {
		t.Fatalf("ping param type = %q, want str from the later definition", got)
	}
}

func TestExtractSkipsKeywordOnlyParams(t *testing.T) {
	src := `def run(a: int, *args, b: str = "x", **kwargs):
    pass
`
	sigs, err := Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []Param{{Name: "a", Type: "int"}}
	if !reflect.DeepEqual(sigs[0].Params, want) {
		t.Fatalf("params = %+v, want %+v", sigs[0].Params, want)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
	}{
		{name: "unterminated docstring", src: "def f():\n    \"\"\"doc", wantLine: 2},
		{name: "unterminated header", src: "def f(a,", wantLine: 1},
		{name: "unterminated module string", src: "X = \"\"\"abc", wantLine: 1},
		{name: "malformed def", src: "def (a):\n    pass", wantLine: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract([]byte(tt.src))
			var xerr *ExtractionError
			if !errors.As(err, &xerr) {
				t.Fatalf("Extract() error = %v, want *ExtractionError", err)
			}
			if xerr.Line != tt.wantLine {
				t.Fatalf("error line = %d, want %d", xerr.Line, tt.wantLine)
			}
		})
	}
}

func TestParamDoc(t *testing.T) {
	doc := "Do things.\n\nArgs:\n    alpha: The first value\n    beta: The second value\n\nReturns:\n    Nothing"

	tests := []struct {
		name  string
		param string
		want  string
	}{
		{name: "first param", param: "alpha", want: "The first value"},
		{name: "second param", param: "beta", want: "The second value"},
		{name: "case insensitive", param: "ALPHA", want: "The first value"},
		{name: "missing param", param: "gamma", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := paramDoc(doc, tt.param); got != tt.want {
				t.Fatalf("paramDoc(%q) = %q, want %q", tt.param, got, tt.want)
			}
		})
	}
}
