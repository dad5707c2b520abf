// Copyright 2015 Google Inc. All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mkcore

import (
	"reflect"
	"testing"
)

func TestShellScriptHasNoIO(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want bool
	}{
		{in: "", want: true},
		{in: "echo $((3+4))", want: true},
		{in: "echo $((1*2*3))", want: true},
		{in: "date", want: false},
		{in: "echo hello", want: false},
		{in: "echo $((1+1)", want: false},
	} {
		if got := ShellScriptHasNoIO([]byte(tc.in)); got != tc.want {
			t.Errorf("ShellScriptHasNoIO(%q)=%t; want %t", tc.in, got, tc.want)
		}
	}
}

// TestFuncIfStripsCondition exercises spec's $(if) invariant: a
// whitespace-only condition must take the else branch, not the then
// branch, so the condition has to be stripped before the emptiness check.
func TestFuncIfStripsCondition(t *testing.T) {
	for _, tc := range []struct {
		name string
		cond string
		want string
	}{
		{name: "non-empty", cond: "a", want: "then"},
		{name: "empty", cond: "", want: "else"},
		{name: "whitespace-only", cond: "   ", want: "else"},
	} {
		f := &funcIf{
			fclosure: fclosure{
				args: []Value{
					literal("(if"),
					literal(tc.cond),
					literal("then"),
					literal("else"),
				},
			},
		}
		ev := NewEvaluator(make(map[string]Var))
		out := newEbuf()
		err := f.Eval(out, ev)
		if err != nil {
			t.Fatalf("%s: funcIf.Eval: %v", tc.name, err)
		}
		if got := out.String(); got != tc.want {
			t.Errorf("%s: $(if %q,then,else)=%q; want %q", tc.name, tc.cond, got, tc.want)
		}
		out.release()
	}
}

func TestFuncWildcardRecordsGlobResult(t *testing.T) {
	f := &funcWildcard{
		fclosure: fclosure{
			args: []Value{
				literal("(wildcard"),
				literal("func.go"),
			},
		},
	}
	ev := NewEvaluator(make(map[string]Var))
	out := newWbuf()
	defer out.release()

	if err := f.Eval(out, ev); err != nil {
		t.Fatalf("funcWildcard.Eval: %v", err)
	}

	want := []string{"func.go"}
	if got := ev.globResults["func.go"]; !reflect.DeepEqual(got, want) {
		t.Errorf("globResults[%q]=%v; want %v", "func.go", got, want)
	}
	if got := out.Bytes(); string(got) != "func.go" {
		t.Errorf("funcWildcard.Eval output=%q; want %q", got, "func.go")
	}
}
