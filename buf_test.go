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

func TestEvalBufferReuse(t *testing.T) {
	buf := newEbuf()
	buf.WriteString("hello")
	if got := buf.String(); got != "hello" {
		t.Errorf("buf.String()=%q; want %q", got, "hello")
	}
	buf.release()

	buf2 := newEbuf()
	defer buf2.release()
	if got := buf2.String(); got != "" {
		t.Errorf("newEbuf() after release not reset: String()=%q; want empty", got)
	}
}

func TestWordBufferContinuesAcrossWrites(t *testing.T) {
	wb := newWbuf()
	defer wb.release()
	wb.WriteString("foo")
	wb.WriteString("bar baz")
	if got := wb.Bytes(); string(got) != "foobar baz" {
		t.Errorf("wb.Bytes()=%q; want %q", got, "foobar baz")
	}
	if len(wb.words) != 2 {
		t.Errorf("len(wb.words)=%d; want 2 (%q)", len(wb.words), wb.words)
	}
}

func TestBufPoolStatsTracksGetsAndDiscards(t *testing.T) {
	old := EvalStatsFlag
	EvalStatsFlag = true
	defer func() { EvalStatsFlag = old }()

	eg0, ed0, _, _ := bufPoolStats.snapshot()

	buf := newEbuf()
	buf.Reset()
	buf.buf = append(buf.buf, make([]byte, 2048)...) // force cap > 1024
	buf.release()

	eg1, ed1, _, _ := bufPoolStats.snapshot()
	if eg1 != eg0+1 {
		t.Errorf("ebufGets=%d; want %d", eg1, eg0+1)
	}
	if ed1 != ed0+1 {
		t.Errorf("ebufDiscards=%d; want %d (oversized buffer should be discarded, not pooled)", ed1, ed0+1)
	}
}
