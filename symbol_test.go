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

import "testing"

func TestSymbolRoundTrips(t *testing.T) {
	for _, s := range []string{"", "foo", "CFLAGS", "a/b/c.o", "foo bar"} {
		sym := Intern(s)
		if got := sym.String(); got != s {
			t.Errorf("Intern(%q).String()=%q; want %q", s, got, s)
		}
		if again := Intern(sym.String()); again != sym {
			t.Errorf("Intern(Intern(%q).String())=%v; want %v", s, again, sym)
		}
	}
}

func TestInternIsCanonical(t *testing.T) {
	a := Intern("foo")
	b := InternBytes([]byte("foo"))
	if a != b {
		t.Errorf("Intern(%q)=%v, InternBytes(%q)=%v; want equal", "foo", a, "foo", b)
	}
	if !a.IsValid() {
		t.Errorf("Intern(%q).IsValid()=false; want true", "foo")
	}
}

func TestAssignSymbolBindsHandle(t *testing.T) {
	vars := make(Vars)
	sym := Intern("TestAssignSymbolBindsHandle_VAR")
	v := &simpleVar{value: []string{"hello"}, origin: "file"}
	vars.AssignSymbol(sym, v)

	if got := vars.LookupSymbol(sym); got != v {
		t.Errorf("LookupSymbol(%v)=%v; want %v", sym, got, v)
	}
	if got := sym.Binding(); got != v {
		t.Errorf("Binding(%v)=%v; want %v", sym, got, v)
	}
}

func TestEvalAssignBindsSymbol(t *testing.T) {
	ev := NewEvaluator(make(map[string]Var))
	ast := &assignAST{
		lhs: literal("X"),
		rhs: literal("1"),
		op:  ":=",
	}
	if err := ev.evalAssign(ast); err != nil {
		t.Fatalf("evalAssign: %v", err)
	}
	sym := Intern("X")
	if got := sym.Binding(); got == nil || got.String() != "1" {
		t.Errorf("Binding(%v)=%v; want a var holding %q", sym, got, "1")
	}
	if got := ev.outVars.Lookup("X").String(); got != "1" {
		t.Errorf(`outVars.Lookup("X")=%q; want "1"`, got)
	}
}

func TestDepNodeIdentityIsSymbol(t *testing.T) {
	a := Intern("foo.o")
	b := Intern("foo.o")
	n := &DepNode{Output: a}
	if n.Output != b {
		t.Errorf("DepNode built from %q has Output %v; want it to equal a fresh Intern(%q)=%v", "foo.o", n.Output, "foo.o", b)
	}
}
