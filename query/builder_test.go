package query

import (
	"testing"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/stretchr/testify/require"
)

func TestInsert(t *testing.T) {
	as := require.New(t)

	stmt, err := Insert("users", store.R("name", "Ann", "age", 30))
	as.NoError(err)
	as.Equal(`INSERT INTO "users" ("name","age") VALUES (?,?)`, stmt.SQL)
	as.Equal([]store.Value{"Ann", 30}, stmt.Params)

	stmt, err = InsertOrReplace("users", store.R("id", 1, "name", "Ann"))
	as.NoError(err)
	as.Equal(`INSERT OR REPLACE INTO "users" ("id","name") VALUES (?,?)`, stmt.SQL)
	as.Equal([]store.Value{1, "Ann"}, stmt.Params)

	stmt, err = Insert("users", store.Record{})
	as.NoError(err)
	as.Equal(`INSERT INTO "users" DEFAULT VALUES`, stmt.SQL)
	as.Empty(stmt.Params)
}

func TestUpdate(t *testing.T) {
	as := require.New(t)

	stmt, err := Update("users", store.R("name", "Ann", "id", 1, "age", 31))
	as.NoError(err)
	as.Equal(`UPDATE "users" SET "name"=?,"age"=? WHERE "id"=?`, stmt.SQL)
	as.Equal([]store.Value{"Ann", 31, 1}, stmt.Params)

	_, err = Update("users", store.R("name", "Ann"))
	as.ErrorIs(err, store.ErrMissingIdentifier)

	_, err = Update("users", store.R("id", nil, "name", "Ann"))
	as.ErrorIs(err, store.ErrMissingIdentifier)

	_, err = Update("users", store.R("id", 1))
	as.ErrorIs(err, store.ErrInvalidColumn)
}

func TestTemplates(t *testing.T) {
	as := require.New(t)

	sql, err := Destroy("users")
	as.NoError(err)
	as.Equal(`DELETE FROM "users" WHERE "id"=?`, sql)

	sql, err = DestroyAll("users")
	as.NoError(err)
	as.Equal(`DELETE FROM "users"`, sql)

	sql, err = Find("users")
	as.NoError(err)
	as.Equal(`SELECT * FROM "users" WHERE "id"=? LIMIT 1`, sql)
}

func TestQuery(t *testing.T) {
	as := require.New(t)

	sql, err := Query("users", store.QuerySpec{})
	as.NoError(err)
	as.Equal(`SELECT * FROM "users" ORDER BY "id" ASC`, sql)

	spec := store.QuerySpec{
		Where: []store.Predicate{
			store.Eq("name", "Ann"),
			store.Gt("age", 5),
			store.In("city", "A", "B"),
			store.Eq("email", nil),
			store.Lte("age", 90),
		},
		OrderBy: []store.Order{store.Desc("age"), store.Asc("name")},
		Limit:   store.Limit(10),
	}
	sql, err = Query("users", spec)
	as.NoError(err)
	as.Equal(`SELECT * FROM "users" WHERE "name" = ? AND "age" > ? AND "city" IN (?,?) AND "email" IS NULL AND "age" <= ? ORDER BY "age" DESC, "name" ASC LIMIT 10`, sql)
	as.Equal([]store.Value{"Ann", 5, "A", "B", 90}, Params(spec))

	spec = store.QuerySpec{
		Where: []store.Predicate{store.In("city"), store.Ne("email", nil), store.Like("name", "A%")},
		Limit: store.Limit(0),
	}
	sql, err = Query("users", spec)
	as.NoError(err)
	as.Equal(`SELECT * FROM "users" WHERE 0 = 1 AND "email" IS NOT NULL AND "name" LIKE ? ORDER BY "id" ASC LIMIT 0`, sql)
	as.Equal([]store.Value{"A%"}, Params(spec))
}

func TestQueryErrors(t *testing.T) {
	as := require.New(t)

	_, err := Query("users", store.QuerySpec{Limit: store.Limit(-1)})
	as.ErrorIs(err, store.ErrInvalidColumn)

	_, err = Query("users", store.QuerySpec{Where: []store.Predicate{{Column: "age", Op: "BETWEEN"}}})
	as.ErrorIs(err, store.ErrInvalidColumn)

	_, err = Query("users", store.QuerySpec{OrderBy: []store.Order{store.Asc("age; DROP TABLE users")}})
	as.ErrorIs(err, store.ErrInvalidColumn)
}

func TestInvalidIdentifiers(t *testing.T) {
	as := require.New(t)

	bad := []string{"", "1abc", "a b", `a"b`, "a;--", "naïve"}
	for _, ident := range bad {
		_, err := Insert("users", store.R(ident, 1))
		as.ErrorIs(err, store.ErrInvalidColumn, ident)

		_, err = Insert(ident, store.R("a", 1))
		as.ErrorIs(err, store.ErrInvalidColumn, ident)

		_, err = Query("users", store.QuerySpec{Where: []store.Predicate{store.Eq(ident, 1)}})
		as.ErrorIs(err, store.ErrInvalidColumn, ident)

		_, err = Find(ident)
		as.ErrorIs(err, store.ErrInvalidColumn, ident)
	}
}

func TestCountAndCreate(t *testing.T) {
	as := require.New(t)

	sql, err := Count("users", []store.Predicate{store.Gte("age", 18)})
	as.NoError(err)
	as.Equal(`SELECT COUNT(*) AS "count" FROM "users" WHERE "age" >= ?`, sql)

	schema, err := store.NewSchema("users",
		store.Column{Name: "name", Type: store.Text},
		store.Column{Name: "score", Type: store.Real},
	)
	as.NoError(err)
	sql, err = CreateTable(schema)
	as.NoError(err)
	as.Equal(`CREATE TABLE IF NOT EXISTS "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT, "score" REAL)`, sql)
}
