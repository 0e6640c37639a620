// Package config loads the optimizer policy from CUE.
//
// A policy file is a CUE struct unified with the embedded #Policy schema,
// which supplies defaults and rejects unknown fields:
//
//	max_depth: 32
//	or_split:  "sound"
//	operators: ["$eq"]
//
// The policy's content hash identifies the rewrite semantics it selects and
// is recorded with every stored rewrite.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/exprmatch/internal/ir"
	"github.com/roach88/exprmatch/internal/rewrite"
)

//go:embed schema.cue
var schemaSource string

// Policy is the decoded optimizer policy.
type Policy struct {
	MaxDepth  int      `json:"max_depth"`
	OrSplit   string   `json:"or_split"`
	Operators []string `json:"operators"`
	LogLevel  string   `json:"log_level"`
}

// Default returns the policy an empty file produces.
func Default() Policy {
	return Policy{
		MaxDepth:  rewrite.DefaultMaxDepth,
		OrSplit:   rewrite.OrSplitCompat.String(),
		Operators: []string{"$eq", "$in"},
		LogLevel:  "info",
	}
}

// Load reads and parses a policy file.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data, path)
}

// Parse parses CUE policy source. filename is used in error positions.
func Parse(src []byte, filename string) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Policy"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Policy{}, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return Policy{}, formatCUEError(err)
	}

	var p Policy
	if err := v.Decode(&p); err != nil {
		return Policy{}, formatCUEError(err)
	}

	if _, err := rewrite.DefaultRegistry().Only(p.Operators...); err != nil {
		return Policy{}, &ConfigError{
			Field:   "operators",
			Message: err.Error(),
			Pos:     user.LookupPath(cue.ParsePath("operators")).Pos(),
		}
	}
	return p, nil
}

// Options converts the policy into optimizer options.
func (p Policy) Options(logger *slog.Logger) ([]rewrite.Option, error) {
	mode, err := rewrite.ParseOrSplitMode(p.OrSplit)
	if err != nil {
		return nil, &ConfigError{Field: "or_split", Message: err.Error()}
	}
	registry, err := rewrite.DefaultRegistry().Only(p.Operators...)
	if err != nil {
		return nil, &ConfigError{Field: "operators", Message: err.Error()}
	}
	return []rewrite.Option{
		rewrite.WithRegistry(registry),
		rewrite.WithMaxDepth(p.MaxDepth),
		rewrite.WithOrSplit(mode),
		rewrite.WithLogger(logger),
	}, nil
}

// Optimizer builds an optimizer configured by the policy.
func (p Policy) Optimizer(logger *slog.Logger) (*rewrite.Optimizer, error) {
	opts, err := p.Options(logger)
	if err != nil {
		return nil, err
	}
	return rewrite.New(opts...), nil
}

// Document returns the fields that affect rewrite output, in a fixed order.
// The log level is not included.
func (p Policy) Document() ir.Document {
	// The operator set, not the order it was listed in, selects the converters.
	names := slices.Clone(p.Operators)
	slices.Sort(names)
	names = slices.Compact(names)
	ops := make(ir.Array, len(names))
	for i, op := range names {
		ops[i] = ir.String(op)
	}
	return ir.D(
		ir.E("max_depth", ir.Int(int64(p.MaxDepth))),
		ir.E("or_split", ir.String(p.OrSplit)),
		ir.E("operators", ops),
	)
}

// FromDocument rebuilds a policy from the output of Document. Fields missing
// from doc keep their defaults.
func FromDocument(doc ir.Document) (Policy, error) {
	p := Default()
	for _, e := range doc {
		switch e.Key {
		case "max_depth":
			n, ok := e.Value.(ir.Int)
			if !ok {
				return Policy{}, &ConfigError{Field: e.Key, Message: "must be an integer"}
			}
			p.MaxDepth = int(n)
		case "or_split":
			s, ok := e.Value.(ir.String)
			if !ok {
				return Policy{}, &ConfigError{Field: e.Key, Message: "must be a string"}
			}
			p.OrSplit = string(s)
		case "operators":
			arr, ok := e.Value.(ir.Array)
			if !ok {
				return Policy{}, &ConfigError{Field: e.Key, Message: "must be a list of strings"}
			}
			ops := make([]string, 0, len(arr))
			for _, v := range arr {
				s, ok := v.(ir.String)
				if !ok {
					return Policy{}, &ConfigError{Field: e.Key, Message: "must be a list of strings"}
				}
				ops = append(ops, string(s))
			}
			p.Operators = ops
		default:
			return Policy{}, &ConfigError{Field: e.Key, Message: "unknown policy field"}
		}
	}
	if p.MaxDepth < 1 {
		return Policy{}, &ConfigError{Field: "max_depth", Message: "must be positive"}
	}
	if _, err := p.Options(nil); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Hash returns the policy's content hash.
func (p Policy) Hash() (string, error) {
	return ir.PolicyHash(p.Document())
}

// Level returns the slog level named by LogLevel.
func (p Policy) Level() slog.Level {
	switch p.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigError represents a policy error with source position.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts the path and position of the first CUE error.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := strings.Join(first.Path(), ".")
	if field == "" {
		field = "policy"
	}
	cfgErr := &ConfigError{Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		cfgErr.Pos = positions[0]
	}
	return cfgErr
}
