package earthengine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeValue(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestSerialize_Constant(t *testing.T) {
	expr, err := Serialize(Constant(3))
	require.NoError(t, err)
	assert.Equal(t, "0", expr.Result)
	assert.JSONEq(t, `{"constantValue":3}`, string(expr.Values["0"]))
}

func TestSerialize_NullConstant(t *testing.T) {
	expr, err := Serialize(Null())
	require.NoError(t, err)
	assert.JSONEq(t, `{"constantValue":null}`, string(expr.Values[expr.Result]))
}

func TestSerialize_Invocation(t *testing.T) {
	img := Invoke("Image.load", map[string]Expr{"id": Constant("COPERNICUS/S2")})
	sel := Invoke("Image.select", map[string]Expr{
		"input":         img,
		"bandSelectors": Strings("B3", "B8"),
	})

	expr, err := Serialize(sel)
	require.NoError(t, err)
	require.Len(t, expr.Values, 2)

	root := decodeValue(t, expr.Values[expr.Result])
	inv := root["functionInvocationValue"].(map[string]any)
	assert.Equal(t, "Image.select", inv["functionName"])

	args := inv["arguments"].(map[string]any)
	bands := args["bandSelectors"].(map[string]any)["arrayValue"].(map[string]any)["values"].([]any)
	assert.Len(t, bands, 2)

	ref := args["input"].(map[string]any)["valueReference"].(string)
	loaded := decodeValue(t, expr.Values[ref])
	assert.Equal(t, "Image.load", loaded["functionInvocationValue"].(map[string]any)["functionName"])
}

func TestSerialize_DeduplicatesSharedNodes(t *testing.T) {
	geom := Invoke("Feature.geometry", map[string]Expr{
		"feature": Invoke("Collection.first", map[string]Expr{
			"collection": Invoke("Collection.loadTable", map[string]Expr{"tableId": Constant("users/public/lake")}),
		}),
	})
	// Two structurally identical but separately built nodes.
	geom2 := Invoke("Feature.geometry", map[string]Expr{
		"feature": Invoke("Collection.first", map[string]Expr{
			"collection": Invoke("Collection.loadTable", map[string]Expr{"tableId": Constant("users/public/lake")}),
		}),
	})
	pair := Array(geom, geom2, geom)

	expr, err := Serialize(pair)
	require.NoError(t, err)
	// loadTable, first, geometry, and the root array.
	assert.Len(t, expr.Values, 4)

	root := decodeValue(t, expr.Values[expr.Result])
	items := root["arrayValue"].(map[string]any)["values"].([]any)
	first := items[0].(map[string]any)["valueReference"]
	for _, it := range items {
		assert.Equal(t, first, it.(map[string]any)["valueReference"])
	}
}

func TestSerialize_FunctionDefinition(t *testing.T) {
	body := Invoke("Image.normalizedDifference", map[string]Expr{
		"input":     ArgRef("_MAPPING_VAR_0_0"),
		"bandNames": Strings("B3", "B8"),
	})
	mapped := Invoke("Collection.map", map[string]Expr{
		"collection":    Invoke("ImageCollection.load", map[string]Expr{"id": Constant("C")}),
		"baseAlgorithm": Func([]string{"_MAPPING_VAR_0_0"}, body),
	})

	expr, err := Serialize(mapped)
	require.NoError(t, err)

	root := decodeValue(t, expr.Values[expr.Result])
	args := root["functionInvocationValue"].(map[string]any)["arguments"].(map[string]any)
	fnRef := args["baseAlgorithm"].(map[string]any)["valueReference"].(string)

	fn := decodeValue(t, expr.Values[fnRef])["functionDefinitionValue"].(map[string]any)
	assert.Equal(t, []any{"_MAPPING_VAR_0_0"}, fn["argumentNames"])

	bodyNode := decodeValue(t, expr.Values[fn["body"].(string)])
	bodyArgs := bodyNode["functionInvocationValue"].(map[string]any)["arguments"].(map[string]any)
	assert.Equal(t, "_MAPPING_VAR_0_0", bodyArgs["input"].(map[string]any)["argumentReference"])
}

func TestSerialize_DropsUnsetArguments(t *testing.T) {
	expr, err := Serialize(Invoke("Reducer.sum", map[string]Expr{"unused": {}}))
	require.NoError(t, err)
	root := decodeValue(t, expr.Values[expr.Result])
	args := root["functionInvocationValue"].(map[string]any)["arguments"].(map[string]any)
	assert.Empty(t, args)
}

func TestSerialize_Errors(t *testing.T) {
	_, err := Serialize(Expr{})
	assert.Error(t, err)

	_, err = Serialize(Array(Constant(1), Expr{}))
	assert.Error(t, err)
}

func TestSerialize_Deterministic(t *testing.T) {
	build := func() Expr {
		return Invoke("Image.addBands", map[string]Expr{
			"dstImg": Invoke("Image.load", map[string]Expr{"id": Constant("a")}),
			"srcImg": Invoke("Image.load", map[string]Expr{"id": Constant("b")}),
		})
	}
	a, err := Serialize(build())
	require.NoError(t, err)
	b, err := Serialize(build())
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.JSONEq(t, string(ja), string(jb))
}
