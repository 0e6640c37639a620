package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pointGeometry   = `{"type":"Point","coordinates":[-73.9,40.7]}`
	polygonGeometry = `{"type":"Polygon","coordinates":[[[0,0],[3,0],[3,3],[0,0]]]}`
)

func TestGeoCommand_Within(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewGeoCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"within", "loc", polygonGeometry})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Equal(t,
		`{"loc":{"$geoWithin":{"$geometry":{"type":"Polygon","coordinates":[[[0,0],[3,0],[3,3],[0,0]]]}}}}`+"\n",
		buf.String())
}

func TestGeoCommand_DistanceJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewGeoCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"distance_gt", "loc", pointGeometry, "500"})

	err := cmd.Execute()
	require.NoError(t, err)

	var response struct {
		Status string    `json:"status"`
		Data   GeoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "distance_gt", response.Data.Relation)
	assert.Equal(t, "loc", response.Data.Field)
	assert.Contains(t, string(response.Data.Fragment), "$not")
	assert.Contains(t, string(response.Data.Fragment), "$centerSphere")
}

func TestGeoCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown relation", []string{"touches", "loc", pointGeometry}, "unknown spatial relation"},
		{"invalid json", []string{"within", "loc", `{"type":`}, "invalid geometry"},
		{"not a geometry", []string{"within", "loc", `[1, 2]`}, "geometry must be a document"},
		{"contains polygon", []string{"contains", "loc", polygonGeometry}, "contains requires a Point"},
		{"missing distance", []string{"distance_lt", "loc", pointGeometry}, "distance parameter required"},
		{"bad distance", []string{"dwithin", "loc", pointGeometry, "far"}, "invalid distance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewGeoCommand(&RootOptions{Format: "text"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGeoCommand_ErrorJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewGeoCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"touches", "loc", pointGeometry})

	err := cmd.Execute()
	require.Error(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrCodeGeo, response.Error.Code)
}

func TestGeoCommand_HelpListsRelations(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewGeoCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "distance_lt")
	assert.Contains(t, buf.String(), "dwithin")
}
