package table

import (
	"testing"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) store.Schema {
	t.Helper()

	schema, err := store.NewSchema("users",
		store.Column{Name: "name", Type: store.Text},
		store.Column{Name: "age", Type: store.Integer},
		store.Column{Name: "score", Type: store.Real},
		store.Column{Name: "avatar", Type: store.Blob},
	)
	require.NoError(t, err)
	return schema
}

func TestParseAssignments(t *testing.T) {
	as := require.New(t)
	schema := testSchema(t)

	r, err := parseAssignments(schema, []string{"name=Ann=Marie", "age=30", "score=1.5", "avatar=0xcafe", "name=Ann"})
	as.NoError(err)
	as.Equal(store.R("name", "Ann", "age", int64(30), "score", 1.5, "avatar", []byte{0xca, 0xfe}), r)

	r, err = parseAssignments(schema, []string{"age=NULL"})
	as.NoError(err)
	as.Equal(store.R("age", nil), r)

	_, err = parseAssignments(schema, []string{"age"})
	as.Error(err)

	_, err = parseAssignments(schema, []string{"email=x"})
	as.ErrorIs(err, store.ErrInvalidColumn)

	_, err = parseAssignments(schema, []string{"age=thirty"})
	as.ErrorIs(err, store.ErrTypeMismatch)

	_, err = parseAssignments(schema, []string{"avatar=zz"})
	as.ErrorIs(err, store.ErrTypeMismatch)
}

func TestParsePredicates(t *testing.T) {
	as := require.New(t)
	schema := testSchema(t)

	preds, err := parsePredicates(schema, []string{
		"age:gte:30",
		"name:in:Ann,Bob",
		"name:like:A%",
		"score:eq:NULL",
		"name:ne:a:b",
	})
	as.NoError(err)
	as.Equal([]store.Predicate{
		store.Gte("age", int64(30)),
		store.In("name", "Ann", "Bob"),
		store.Like("name", "A%"),
		store.Eq("score", nil),
		store.Ne("name", "a:b"),
	}, preds)

	_, err = parsePredicates(schema, []string{"age:30"})
	as.Error(err)

	_, err = parsePredicates(schema, []string{"age:between:1"})
	as.Error(err)

	_, err = parsePredicates(schema, []string{"email:eq:x"})
	as.ErrorIs(err, store.ErrInvalidColumn)
}

func TestParseOrder(t *testing.T) {
	as := require.New(t)

	order, err := parseOrder([]string{"age:desc", "name", "id:ASC"})
	as.NoError(err)
	as.Equal([]store.Order{store.Desc("age"), store.Asc("name"), store.Asc("id")}, order)

	_, err = parseOrder([]string{"age:sideways"})
	as.Error(err)
}

func TestRowRecord(t *testing.T) {
	as := require.New(t)

	r := rowRecord(map[string]any{"name": "Ann", "age": 30, "id": 4})
	as.Equal(store.R("age", 30, "id", 4, "name", "Ann"), r)
}
