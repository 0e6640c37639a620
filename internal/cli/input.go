package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/ir"
)

// readSource reads a file argument; "-" or no argument reads stdin.
func readSource(cmd *cobra.Command, f *OutputFormatter, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", f.CommandError(ErrCodeInput, "failed to read stdin", err)
		}
		return data, "<stdin>", nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", f.CommandError(ErrCodeNotFound, fmt.Sprintf("input file not found: %s", args[0]), nil)
		}
		return nil, "", f.CommandError(ErrCodeInput, fmt.Sprintf("failed to read %s", args[0]), err)
	}
	return data, args[0], nil
}

// readFilter reads the filter document to rewrite.
func readFilter(cmd *cobra.Command, f *OutputFormatter, args []string) (ir.Document, error) {
	data, name, err := readSource(cmd, f, args)
	if err != nil {
		return nil, err
	}
	filter, err := ir.ParseDocument(data)
	if err != nil {
		return nil, f.CommandError(ErrCodeInput, fmt.Sprintf("invalid filter in %s", name), err)
	}
	return filter, nil
}

// readDocuments reads a JSON array of sample documents.
func readDocuments(f *OutputFormatter, path string) ([]ir.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, f.CommandError(ErrCodeNotFound, fmt.Sprintf("documents file not found: %s", path), nil)
		}
		return nil, f.CommandError(ErrCodeInput, "failed to read documents", err)
	}
	docs, err := ir.ParseDocuments(data)
	if err != nil {
		return nil, f.CommandError(ErrCodeInput, fmt.Sprintf("invalid documents in %s", path), err)
	}
	return docs, nil
}

// stagesValue wraps stages as an array value for encoding.
func stagesValue(stages []ir.Document) ir.Array {
	arr := make(ir.Array, len(stages))
	for i, s := range stages {
		arr[i] = s
	}
	return arr
}

// rawJSON encodes v for embedding in a JSON response, keeping key order.
func rawJSON(v ir.Value) (json.RawMessage, error) {
	data, err := ir.MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
