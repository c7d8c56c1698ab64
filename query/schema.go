package query

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/oceanvis/mvq/mvq"
)

// querySchema constrains the JSON query form before unmarshaling.
const querySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "order": {"enum": ["DepthFaceTime", "DepthTimeFace", "FaceDepthTime", "FaceTimeDepth", "TimeDepthFace", "TimeFaceDepth"]},
    "accuracy": {"type": "number", "minimum": 0},
    "downsampling": {"type": "array", "items": {"type": "integer", "minimum": 0}, "minItems": 3, "maxItems": 3},
    "depths": {"$ref": "#/$defs/range"},
    "times": {"$ref": "#/$defs/range"},
    "faces": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "face": {"type": "integer", "minimum": 0},
          "x": {"$ref": "#/$defs/range"},
          "y": {"$ref": "#/$defs/range"}
        },
        "required": ["face", "x", "y"],
        "additionalProperties": false
      }
    }
  },
  "required": ["order", "depths", "times", "faces"],
  "additionalProperties": false,
  "$defs": {
    "range": {"type": "array", "items": {"type": "integer", "minimum": 0}, "minItems": 2, "maxItems": 2}
  }
}`

var compiledSchema = jsonschema.MustCompileString("query.json", querySchema)

// jsonQuery is the wire form accepted by ParseQuery.
type jsonQuery struct {
	Order        string     `json:"order"`
	Accuracy     float64    `json:"accuracy"`
	Downsampling [3]int32   `json:"downsampling"`
	Depths       [2]int     `json:"depths"`
	Times        [2]int     `json:"times"`
	Faces        []jsonFace `json:"faces"`
}

type jsonFace struct {
	Face int    `json:"face"`
	X    [2]int `json:"x"`
	Y    [2]int `json:"y"`
}

// ParseQuery builds a query against ds from its JSON form, e.g.,
//
//	{"order": "TimeDepthFace", "accuracy": 0.01, "downsampling": [0,2,2],
//	 "depths": [0,90], "times": [16,17],
//	 "faces": [{"face":0, "x":[0,2160], "y":[3000,3001]}]}
//
// The document is validated against the embedded schema first; range
// violations against the dataset geometry surface later, from Requests.
func ParseQuery(data []byte, ds *Dataset) (*Query, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("can't parse query JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("query JSON is invalid: %w", err)
	}
	var jq jsonQuery
	if err := json.Unmarshal(data, &jq); err != nil {
		return nil, fmt.Errorf("can't parse query JSON: %w", err)
	}
	order, err := ParseOrder(jq.Order)
	if err != nil {
		return nil, err
	}
	q := NewQuery(ds)
	q.Order = order
	q.Accuracy = jq.Accuracy
	q.Downsampling = mvq.Point3d(jq.Downsampling)
	q.Depths = Range{jq.Depths[0], jq.Depths[1]}
	q.Times = Range{jq.Times[0], jq.Times[1]}
	for _, f := range jq.Faces {
		q.AddSpatialRange(f.Face, f.X[0], f.X[1], f.Y[0], f.Y[1])
	}
	return q, nil
}
