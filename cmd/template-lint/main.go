// Command template-lint checks approval template definitions before they are uploaded.
//
//	template-lint configs/templates/*.yaml
//
// Each file holds one template in the same shape the API accepts. The exit
// status is 1 when any file has errors; warnings alone do not fail the run.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/store-approval/internal/application/service"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/graph"
)

func main() {
	strict := flag.Bool("strict", false, "treat warnings as errors")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: template-lint [-strict] file.yaml...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := false
	for _, path := range flag.Args() {
		if !lintFile(os.Stdout, path, *strict) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// lintFile reports on one file and returns false when it should fail the run
func lintFile(out io.Writer, path string, strict bool) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", path, err)
		return false
	}
	report, err := lint(data)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", path, err)
		return false
	}

	for _, v := range report.Errors {
		fmt.Fprintf(out, "%s: error: %s\n", path, describe(v))
	}
	for _, v := range report.Warnings {
		fmt.Fprintf(out, "%s: warning: %s\n", path, describe(v))
	}
	if report.Valid() && len(report.Warnings) == 0 {
		fmt.Fprintf(out, "%s: ok\n", path)
	}
	return report.Valid() && !(strict && len(report.Warnings) > 0)
}

func lint(data []byte) (graph.Report, error) {
	var in service.TemplateInput
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return graph.Report{}, fmt.Errorf("invalid template yaml: %w", err)
	}
	return graph.ValidateTemplate(&entity.ApprovalTemplate{
		Name:         in.Name,
		Description:  in.Description,
		Category:     in.Category,
		BusinessType: in.BusinessType,
		Nodes:        in.Nodes,
		FormSchema:   in.FormSchema,
	}), nil
}

func describe(v entity.Violation) string {
	switch {
	case v.NodeID != "" && v.Field != "":
		return fmt.Sprintf("node %s, %s: %s", v.NodeID, v.Field, v.Message)
	case v.NodeID != "":
		return fmt.Sprintf("node %s: %s", v.NodeID, v.Message)
	case v.Field != "":
		return fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return v.Message
}
