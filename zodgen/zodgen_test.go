package zodgen

import (
	"testing"

	"github.com/loomworks/loom/pysig"
)

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name string
		hint string
		def  *pysig.Literal
		want string
	}{
		{name: "no annotation", hint: "", want: "tool.schema.any()"},
		{name: "str", hint: "str", want: "tool.schema.string()"},
		{name: "int", hint: "int", want: "tool.schema.number().int()"},
		{name: "float", hint: "float", want: "tool.schema.number()"},
		{name: "bool", hint: "bool", want: "tool.schema.boolean()"},
		{name: "any", hint: "Any", want: "tool.schema.any()"},
		{name: "bare dict", hint: "dict", want: "tool.schema.object()"},
		{name: "bare list", hint: "list", want: "tool.schema.array(tool.schema.any())"},
		{name: "unknown token", hint: "Path", want: "tool.schema.any()"},
		{name: "optional", hint: "Optional[str]", want: "tool.schema.string().optional()"},
		{
			name: "optional of unknown",
			hint: "Optional[Path]",
			want: "tool.schema.any().optional()",
		},
		{
			name: "union",
			hint: "Union[int, str]",
			want: "tool.schema.union([tool.schema.number().int(), tool.schema.string()])",
		},
		{
			name: "union drops null arm",
			hint: "Union[str, None]",
			want: "tool.schema.union([tool.schema.string()])",
		},
		{name: "union of only null", hint: "Union[None]", want: "tool.schema.any()"},
		{
			name: "optional already nullable falls through to union",
			hint: "Optional[Union[int, None]]",
			want: "tool.schema.union([tool.schema.any(), tool.schema.any()])",
		},
		{name: "list of int", hint: "List[int]", want: "tool.schema.array(tool.schema.number().int())"},
		{name: "lowercase generic list", hint: "list[str]", want: "tool.schema.array(tool.schema.string())"},
		{name: "dict generic", hint: "Dict[str, int]", want: "tool.schema.object()"},
		{name: "lowercase dict generic", hint: "dict[str,int]", want: "tool.schema.object()"},
		{
			name: "int default",
			hint: "int",
			def:  &pysig.Literal{Kind: pysig.LiteralNumber, Num: "0"},
			want: "tool.schema.number().int().default(0)",
		},
		{
			name: "string default",
			hint: "str",
			def:  &pysig.Literal{Kind: pysig.LiteralString, Str: "implement"},
			want: `tool.schema.string().default("implement")`,
		},
		{
			name: "bool default is lower case",
			hint: "bool",
			def:  &pysig.Literal{Kind: pysig.LiteralBool, Bool: true},
			want: "tool.schema.boolean().default(true)",
		},
		{
			name: "default without annotation",
			hint: "",
			def:  &pysig.Literal{Kind: pysig.LiteralNumber, Num: "5"},
			want: "tool.schema.any().default(5)",
		},
		{
			name: "null default adds no clause",
			hint: "str",
			def:  &pysig.Literal{Kind: pysig.LiteralNull},
			want: "tool.schema.string()",
		},
		{
			name: "optional with default",
			hint: "Optional[int]",
			def:  &pysig.Literal{Kind: pysig.LiteralNumber, Num: "3"},
			want: "tool.schema.number().int().optional().default(3)",
		},
		{
			name: "list default",
			hint: "list",
			def: &pysig.Literal{Kind: pysig.LiteralList, List: []pysig.Literal{
				{Kind: pysig.LiteralNumber, Num: "1"},
				{Kind: pysig.LiteralNumber, Num: "2"},
			}},
			want: "tool.schema.array(tool.schema.any()).default([1, 2])",
		},
		{
			name: "object default",
			hint: "dict",
			def: &pysig.Literal{Kind: pysig.LiteralObject, Object: []pysig.ObjectField{
				{Key: "a", Value: pysig.Literal{Kind: pysig.LiteralNumber, Num: "1"}},
			}},
			want: `tool.schema.object().default({"a": 1})`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Synthesize(tt.hint, tt.def)
			if got != tt.want {
				t.Fatalf("Synthesize(%q) = %q, want %q", tt.hint, got, tt.want)
			}
			if again := Synthesize(tt.hint, tt.def); again != got {
				t.Fatalf("Synthesize(%q) is not deterministic: %q then %q", tt.hint, got, again)
			}
		})
	}
}
