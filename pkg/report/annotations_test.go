package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harekrishnarai/flowtaint/pkg/results"
)

func TestWriteAnnotations(t *testing.T) {
	var buf bytes.Buffer
	findings := []results.Result{pwnFinding(t, results.High), pwnFinding(t, results.Medium), injectionFinding(t)}
	if err := WriteAnnotations(&buf, findings); err != nil {
		t.Fatalf("WriteAnnotations: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 annotations, got %d:\n%s", len(lines), buf.String())
	}

	want := "::error file=.github/workflows/pr.yml,line=11,title=PWN_REQUEST::PWN_REQUEST in octo/repo (HIGH, ZERO_CLICK)"
	if lines[0] != want {
		t.Errorf("annotation mismatch\n got: %s\nwant: %s", lines[0], want)
	}
	if !strings.HasPrefix(lines[1], "::warning ") {
		t.Errorf("medium confidence should be a warning: %s", lines[1])
	}
	if !strings.Contains(lines[2], "file=.github/workflows/comment.yml,line=1,") {
		t.Errorf("finding without lines should point at line 1: %s", lines[2])
	}
}

func TestAnnotationEscaping(t *testing.T) {
	if got := propertyEscaper.Replace("a,b:c\nd"); got != "a%2Cb%3Ac%0Ad" {
		t.Errorf("property escaping: %s", got)
	}
	if got := annotationEscaper.Replace("50% done\n"); got != "50%25 done%0A" {
		t.Errorf("message escaping: %s", got)
	}
}
