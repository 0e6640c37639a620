package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/exprmatch/internal/geo"
	"github.com/roach88/exprmatch/internal/ir"
)

// GeoResult is the JSON payload of the geo command.
type GeoResult struct {
	Relation string          `json:"relation"`
	Field    string          `json:"field"`
	Fragment json.RawMessage `json:"fragment"`
}

// NewGeoCommand creates the geo command.
func NewGeoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "geo <relation> <field> <geometry> [distance]",
		Short: "Print the native query fragment for a spatial relation",
		Long: fmt.Sprintf(`Print the native query fragment for a spatial relation.

The geometry is a GeoJSON document. Distance relations take a fourth
argument: meters for the distance_* relations, radians for dwithin.

Relations: %s

Examples:
  exprmatch geo within loc '{"type":"Polygon","coordinates":[[[0,0],[3,0],[3,3],[0,0]]]}'
  exprmatch geo distance_lt loc '{"type":"Point","coordinates":[-73.9,40.7]}' 500`,
			strings.Join(geo.Relations(), ", ")),
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeo(opts, args, cmd)
		},
	}

	return cmd
}

func runGeo(opts *RootOptions, args []string, cmd *cobra.Command) error {
	relation, field := args[0], args[1]

	f := NewOutputFormatter(cmd, opts)
	fail := func(msg string, err error) error {
		return f.CommandError(ErrCodeGeo, msg, err)
	}

	v, err := ir.ParseJSON([]byte(args[2]))
	if err != nil {
		return fail("invalid geometry", err)
	}
	g, err := geo.ParseGeometry(v)
	if err != nil {
		return fail("invalid geometry", err)
	}

	var params []float64
	if len(args) == 4 {
		d, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fail("invalid distance", err)
		}
		params = append(params, d)
	}

	fragment, err := geo.Build(relation, field, g, params...)
	if err != nil {
		return fail("failed to build fragment", err)
	}

	if opts.Format == "json" {
		raw, err := rawJSON(fragment)
		if err != nil {
			return fmt.Errorf("encode fragment: %w", err)
		}
		return f.Success(GeoResult{
			Relation: relation,
			Field:    field,
			Fragment: raw,
		})
	}

	out, err := ir.MarshalJSON(fragment)
	if err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
