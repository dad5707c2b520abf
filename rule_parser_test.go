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

func TestRuleParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want rule
		err  string
	}{
		{
			in: "foo: bar",
			want: rule{
				outputs: []string{"foo"},
				inputs:  []string{"bar"},
			},
		},
		{
			in: "foo: bar baz",
			want: rule{
				outputs: []string{"foo"},
				inputs:  []string{"bar", "baz"},
			},
		},
		{
			in: "foo:: bar",
			want: rule{
				outputs:       []string{"foo"},
				inputs:        []string{"bar"},
				isDoubleColon: true,
			},
		},
		{
			in:  "foo",
			err: "*** missing separator.",
		},
		{
			in: "%.o: %.c",
			want: rule{
				outputs:        []string{},
				outputPatterns: []pattern{{suffix: ".o"}},
				inputs:         []string{"%.c"},
			},
		},
		{
			in:  "foo %.o: %.c",
			err: "*** mixed implicit and normal rules: deprecated syntax",
		},
		{
			in: "foo.o: %.o: %.c %.h",
			want: rule{
				outputs:        []string{"foo.o"},
				outputPatterns: []pattern{{suffix: ".o"}},
				inputs:         []string{"%.c", "%.h"},
			},
		},
		{
			in:  "%.x: %.y: %.z",
			err: "*** mixed implicit and normal rules: deprecated syntax",
		},
		{
			in:  "foo.o: : %.c",
			err: "*** missing target pattern.",
		},
		{
			in:  "foo.o: %.o %.o: %.c",
			err: "*** multiple target patterns.",
		},
		{
			in:  "foo.o: foo.o: %.c",
			err: "*** target pattern contains no '%'.",
		},
		{
			in: "foo: bar | baz",
			want: rule{
				outputs:         []string{"foo"},
				inputs:          []string{"bar"},
				orderOnlyInputs: []string{"baz"},
			},
		},
	} {
		got := &rule{}
		assign, err := got.parse([]byte(tc.in), nil, nil)
		if tc.err != "" {
			if err == nil {
				t.Errorf(`(&rule{}).parse(%q, nil, nil)=_, <nil>; want error %q`, tc.in, tc.err)
				continue
			}
			if got, want := err.Error(), tc.err; got != want {
				t.Errorf(`(&rule{}).parse(%q, nil, nil) error=%q; want %q`, tc.in, got, want)
			}
			continue
		}
		if err != nil {
			t.Errorf(`(&rule{}).parse(%q, nil, nil)=_, %v; want nil error`, tc.in, err)
			continue
		}
		if assign != nil {
			t.Errorf(`(&rule{}).parse(%q, nil, nil) assign=%#v; want nil`, tc.in, assign)
		}
		if got, want := got.outputs, tc.want.outputs; !reflect.DeepEqual(got, want) {
			t.Errorf(`(&rule{}).parse(%q, nil, nil) outputs=%#v; want %#v`, tc.in, got, want)
		}
		if got, want := got.inputs, tc.want.inputs; !reflect.DeepEqual(got, want) {
			t.Errorf(`(&rule{}).parse(%q, nil, nil) inputs=%#v; want %#v`, tc.in, got, want)
		}
		if got, want := got.orderOnlyInputs, tc.want.orderOnlyInputs; !reflect.DeepEqual(got, want) {
			t.Errorf(`(&rule{}).parse(%q, nil, nil) orderOnlyInputs=%#v; want %#v`, tc.in, got, want)
		}
		if got, want := got.outputPatterns, tc.want.outputPatterns; !reflect.DeepEqual(got, want) {
			t.Errorf(`(&rule{}).parse(%q, nil, nil) outputPatterns=%#v; want %#v`, tc.in, got, want)
		}
		if got, want := got.isDoubleColon, tc.want.isDoubleColon; got != want {
			t.Errorf(`(&rule{}).parse(%q, nil, nil) isDoubleColon=%t; want %t`, tc.in, got, want)
		}
	}
}
