package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// errReported is returned after diagnostics were written to stderr.
var errReported = errors.New("evaluation failed")

// render writes the projection of v as YAML or JSON.
func render(w io.Writer, v value.Value, format string, includeNone bool) error {
	tree := value.Plan(v, value.PlanOptions{IncludeNone: includeNone})

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// report writes err as caret diagnostics and returns errReported. Errors
// that carry no diagnostic are returned unchanged.
func report(w io.Writer, err error) error {
	list := diagnostics(err)
	if len(list) == 0 {
		return err
	}

	sources := make(map[string]string)
	for _, e := range list {
		fmt.Fprint(w, e.Caret(source(sources, e.Meta.Filename)))
	}
	fmt.Fprintf(w, "%d error(s)\n", len(list))
	return errReported
}

func diagnostics(err error) diag.List {
	var list diag.List
	if errors.As(err, &list) {
		return list
	}
	if e, ok := diag.As(err); ok {
		return diag.List{e}
	}
	return nil
}

func source(cache map[string]string, filename string) string {
	if filename == "" {
		return ""
	}
	if src, ok := cache[filename]; ok {
		return src
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		data = nil
	}
	cache[filename] = string(data)
	return cache[filename]
}

// ExitCode maps a command error to the process exit status: 1 when
// diagnostics were reported, 2 for any other failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errReported):
		return 1
	default:
		return 2
	}
}
