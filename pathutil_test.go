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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type mockfs struct {
	id       fileid
	ofscache *fsCacheT
}

func newFS() *mockfs {
	fs := &mockfs{
		ofscache: fsCache,
	}
	fsCache = &fsCacheT{
		ids:     make(map[string]fileid),
		dirents: make(map[fileid][]dirent),
	}
	fsCache.ids["."] = fs.dir(".").id
	return fs
}

func (m *mockfs) close() {
	fsCache = m.ofscache
}

func (m *mockfs) dirent(name string, mode os.FileMode) dirent {
	id := m.id
	m.id.ino++
	return dirent{id: id, name: name, mode: mode, lmode: mode}
}

func (m *mockfs) addent(name string, ent dirent) {
	dir, name := filepath.Split(name)
	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if dir == "" {
		dir = "."
	}
	di, ok := fsCache.ids[dir]
	if !ok {
		if dir == "." {
			panic(". not found:" + name)
		}
		de := m.add(m.dir, dir)
		fsCache.ids[dir] = de.id
		di = de.id
	}
	for _, e := range fsCache.dirents[di] {
		if e.name == ent.name {
			return
		}
	}
	fsCache.dirents[di] = append(fsCache.dirents[di], ent)
}

func (m *mockfs) add(t func(string) dirent, name string) dirent {
	ent := t(filepath.Base(name))
	m.addent(name, ent)
	return ent
}

func (m *mockfs) dir(name string) dirent  { return m.dirent(name, os.ModeDir) }
func (m *mockfs) file(name string) dirent { return m.dirent(name, os.FileMode(0644)) }

func TestFindExcludesDefaultPruneDirs(t *testing.T) {
	fs := newFS()
	defer fs.close()
	fs.add(fs.file, "testdir/file1")
	fs.add(fs.file, "testdir/.git/HEAD")
	fs.add(fs.file, "testdir/out/gen.o")
	fs.add(fs.file, "testdir/.repo/manifest.xml")
	fs.add(fs.file, "testdir/keep/file2")

	maxdepth := 1<<31 - 1
	fc := findCommand{
		finddirs: []string{"testdir"},
		ops:      []findOp{findOpPrint{}},
		depth:    maxdepth,
	}
	var wb wordBuffer
	fc.run(&wb)
	got := wb.buf.String()
	for _, excluded := range []string{".git", "out", ".repo"} {
		if strings.Contains(got, excluded) {
			t.Errorf("find result %q contains default-pruned dir %q", got, excluded)
		}
	}
	if !strings.Contains(got, "testdir/file1") || !strings.Contains(got, "testdir/keep/file2") {
		t.Errorf("find result %q missing expected non-pruned entries", got)
	}
}

func TestRunFindEmulator(t *testing.T) {
	fs := newFS()
	defer fs.close()
	fs.add(fs.file, "testdir/file1")

	dirs, ok := runFindEmulator(&wordBuffer{}, "find testdir")
	if !ok {
		t.Fatalf("runFindEmulator(%q) ok=false; want true", "find testdir")
	}
	if _, found := dirs["testdir"]; !found {
		t.Errorf("runFindEmulator(%q) dirs=%v; want an entry for %q", "find testdir", dirs, "testdir")
	}

	_, ok = runFindEmulator(&wordBuffer{}, "echo not a find command")
	if ok {
		t.Errorf("runFindEmulator(%q) ok=true; want false", "echo not a find command")
	}
}

func TestDirMtimesMissingDirIsZero(t *testing.T) {
	m := dirMtimes([]string{"/no/such/directory/mkcore-test"})
	if got := m["/no/such/directory/mkcore-test"]; got != 0 {
		t.Errorf("dirMtimes missing dir = %d; want 0", got)
	}
}
