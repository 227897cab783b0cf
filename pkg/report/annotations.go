package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/harekrishnarai/flowtaint/pkg/results"
)

var annotationEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")

var propertyEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C")

// WriteAnnotations prints one GitHub Actions workflow command per finding so
// that findings show up inline on the workflow files of a pull request.
func WriteAnnotations(w io.Writer, findings []results.Result) error {
	for _, f := range findings {
		level := "notice"
		switch f.Confidence() {
		case results.High:
			level = "error"
		case results.Medium:
			level = "warning"
		}
		file := displayWorkflow(f)
		msg := fmt.Sprintf("%s in %s (%s, %s)", f.IssueType(), f.RepositoryName(), f.Confidence(), f.Complexity())
		_, err := fmt.Fprintf(w, "::%s file=%s,line=%d,title=%s::%s\n",
			level,
			propertyEscaper.Replace(file),
			primaryLine(f.Path(), f.InitialWorkflowPath()),
			propertyEscaper.Replace(string(f.IssueType())),
			annotationEscaper.Replace(msg))
		if err != nil {
			return err
		}
	}
	return nil
}
