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
	"strings"
	"testing"
)

func TestSplitSpaces(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{in: "foo", want: []string{"foo"}},
		{in: "  \t ", want: nil},
		{in: "  foo \t  bar \t", want: []string{"foo", "bar"}},
		{in: "  foo bar", want: []string{"foo", "bar"}},
		{in: "foo bar  ", want: []string{"foo", "bar"}},
	} {
		got := splitSpaces(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf(`splitSpaces(%q)=%q, want %q`, tc.in, got, tc.want)
		}
	}
}

func TestWordScanner(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{in: "foo", want: []string{"foo"}},
		{in: "  \t ", want: nil},
		{in: "  foo \t  bar \t", want: []string{"foo", "bar"}},
		{in: "  foo bar", want: []string{"foo", "bar"}},
		{in: "foo bar  ", want: []string{"foo", "bar"}},
	} {
		ws := newWordScanner([]byte(tc.in))
		var got []string
		for ws.Scan() {
			got = append(got, string(ws.Bytes()))
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf(`wordScanner(%q)=%q, want %q`, tc.in, got, tc.want)
		}
	}
}

// TestWordScanIsIdempotent exercises the word-scanning idempotence
// invariant: joining the scanned words back with single spaces reproduces
// the input with its runs of whitespace normalized to one space each.
func TestWordScanIsIdempotent(t *testing.T) {
	for _, in := range []string{
		"foo",
		"  foo \t  bar \t",
		"a b c",
		"",
		"   ",
		"one\ttwo\nthree",
	} {
		ws := newWordScanner([]byte(in))
		var words []string
		for ws.Scan() {
			words = append(words, string(ws.Bytes()))
		}
		got := strings.Join(words, " ")
		want := strings.Join(strings.Fields(in), " ")
		if got != want {
			t.Errorf("join of scanned words for %q = %q; want %q (normalized spaces)", in, got, want)
		}
	}
}

func TestSubstPattern(t *testing.T) {
	for _, tc := range []struct {
		pat  string
		repl string
		in   string
		want string
	}{
		{pat: "%.c", repl: "%.o", in: "x.c", want: "x.o"},
		{pat: "c.%", repl: "o.%", in: "c.x", want: "o.x"},
		{pat: "%.c", repl: "%.o", in: "x.c.c", want: "x.c.o"},
		{pat: "%.c", repl: "%.o", in: "x.x y.c", want: "x.x y.o"},
		{pat: "%.%.c", repl: "OK", in: "x.%.c", want: "OK"},
		{pat: "x.c", repl: "XX", in: "x.c", want: "XX"},
		{pat: "x.c", repl: "XX", in: "x.c.c", want: "x.c.c"},
		{pat: "x.c", repl: "XX", in: "x.x.c", want: "x.x.c"},
	} {
		got := substPattern(tc.pat, tc.repl, tc.in)
		if got != tc.want {
			t.Errorf(`substPattern(%q,%q,%q)=%q, want %q`, tc.pat, tc.repl, tc.in, got, tc.want)
		}

		pre, subst, post := substPatternBytes([]byte(tc.pat), []byte(tc.repl), []byte(tc.in))
		got = string(pre) + string(subst) + string(post)
		if got != tc.want {
			t.Errorf(`substPatternBytes(%q,%q,%q)=%q+%q+%q, want %q`, tc.pat, tc.repl, tc.in, pre, subst, post, tc.want)
		}
	}
}

// TestSubstPatternIdentities exercises spec's pattern-substitution
// invariant directly: substituting a pattern for itself is a no-op on a
// match, and substituting anything on a non-match leaves the string alone.
func TestSubstPatternIdentities(t *testing.T) {
	for _, tc := range []struct {
		pat, other, s string
	}{
		{pat: "%.c", other: "%.o", s: "x.c"},
		{pat: "lib%.a", other: "%.so", s: "libfoo.a"},
		{pat: "%.c", other: "%.o", s: "x.h"}, // does not match pat
	} {
		if matchPattern(tc.pat, tc.s) {
			if got := substPattern(tc.pat, tc.pat, tc.s); got != tc.s {
				t.Errorf("substPattern(%q,%q,%q)=%q; want %q unchanged (self-substitution on a match)", tc.pat, tc.pat, tc.s, got, tc.s)
			}
		} else {
			if got := substPattern(tc.pat, tc.other, tc.s); got != tc.s {
				t.Errorf("substPattern(%q,%q,%q)=%q; want %q unchanged (no match)", tc.pat, tc.other, tc.s, got, tc.s)
			}
		}
	}
}
