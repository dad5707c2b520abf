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
	"crypto/sha1"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withUsedEnvs(t *testing.T, envs map[string]string) func() {
	old := usedEnvs
	usedEnvs = envs
	return func() { usedEnvs = old }
}

func newTestDepGraph(t *testing.T, mkfile string) *DepGraph {
	b, err := ioutil.ReadFile(mkfile)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", mkfile, err)
	}
	return &DepGraph{
		accessedMks: []*accessedMakefile{
			{Filename: mkfile, Hash: sha1.Sum(b), State: fileExists},
		},
		undefinedVars: map[string]bool{"UNDEF": true},
		shellResults:  map[string]string{"cat VERSION": "hi", "date +%s": "12345"},
		globResults:   map[string][]string{filepath.Join(filepath.Dir(mkfile), "*.mk"): {mkfile}},
		findResults:   map[string]map[string]int64{},
	}
}

func TestNewStampExcludesVolatileShellCommands(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{"FOO": "bar"})()

	g := newTestDepGraph(t, mkfile)
	s := NewStamp(g, []string{"all"})

	if _, ok := s.ShellResults["date +%s"]; ok {
		t.Errorf("NewStamp kept a volatile shell result: %v", s.ShellResults)
	}
	if got, want := s.ShellResults["cat VERSION"], "hi"; got != want {
		t.Errorf("ShellResults[%q]=%q; want %q", "cat VERSION", got, want)
	}
	if got, want := s.EnvVars["FOO"], "bar"; got != want {
		t.Errorf("EnvVars[%q]=%q; want %q", "FOO", got, want)
	}
}

func TestCheckStampCurrentWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{"FOO": "bar"})()
	os.Setenv("FOO", "bar")
	defer os.Unsetenv("FOO")

	g := newTestDepGraph(t, mkfile)
	args := []string{"all"}
	s := NewStamp(g, args)

	stampFile := filepath.Join(dir, "stamp")
	if err := SaveStamp(s, stampFile); err != nil {
		t.Fatalf("SaveStamp: %v", err)
	}
	prev, err := LoadStamp(stampFile)
	if err != nil {
		t.Fatalf("LoadStamp: %v", err)
	}

	current, reason := CheckStamp(prev, args)
	if !current {
		t.Errorf("CheckStamp=false (%s); want true", reason)
	}
}

func TestCheckStampDetectsArgChange(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{})()

	g := newTestDepGraph(t, mkfile)
	s := NewStamp(g, []string{"all"})

	current, reason := CheckStamp(s, []string{"clean"})
	if current {
		t.Errorf("CheckStamp=true; want false for changed args")
	}
	if !strings.Contains(reason, "args") {
		t.Errorf("CheckStamp reason=%q; want it to mention args", reason)
	}
}

func TestCheckStampDetectsFileContentChange(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{})()

	g := newTestDepGraph(t, mkfile)
	args := []string{"all"}
	s := NewStamp(g, args)

	if err := ioutil.WriteFile(mkfile, []byte("all:\n\techo changed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	current, reason := CheckStamp(s, args)
	if current {
		t.Errorf("CheckStamp=true; want false after editing %s", mkfile)
	}
	if !strings.Contains(reason, "content changed") {
		t.Errorf("CheckStamp reason=%q; want it to mention content changed", reason)
	}
}

func TestCheckStampDetectsEnvChange(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{"FOO": "bar"})()
	os.Setenv("FOO", "bar")
	defer os.Unsetenv("FOO")

	g := newTestDepGraph(t, mkfile)
	args := []string{"all"}
	s := NewStamp(g, args)

	os.Setenv("FOO", "baz")

	current, reason := CheckStamp(s, args)
	if current {
		t.Errorf("CheckStamp=true; want false after changing $FOO")
	}
	if !strings.Contains(reason, "FOO") {
		t.Errorf("CheckStamp reason=%q; want it to mention FOO", reason)
	}
}

func TestStampExplainReportsUnchanged(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{})()

	g := newTestDepGraph(t, mkfile)
	args := []string{"all"}
	prev := NewStamp(g, args)
	cur := NewStamp(g, args)

	if got := StampExplain(prev, cur); got != "stamp unchanged\n" {
		t.Errorf("StampExplain(unchanged)=%q; want %q", got, "stamp unchanged\n")
	}
}

func TestStampExplainReportsArgDiff(t *testing.T) {
	dir := t.TempDir()
	mkfile := filepath.Join(dir, "rules.mk")
	if err := ioutil.WriteFile(mkfile, []byte("all:\n"), 0644); err != nil {
		t.Fatal(err)
	}
	defer withUsedEnvs(t, map[string]string{})()

	g := newTestDepGraph(t, mkfile)
	prev := NewStamp(g, []string{"all"})
	cur := NewStamp(g, []string{"clean"})

	got := StampExplain(prev, cur)
	if !strings.Contains(got, "args") {
		t.Errorf("StampExplain(%v, %v)=%q; want it to mention args", prev.Args, cur.Args, got)
	}
}
