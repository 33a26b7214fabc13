package repository

import (
	"testing"
	"time"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/stretchr/testify/require"
)

type Audit struct {
	Created time.Time `db:"created"`
}

type profile struct {
	Audit
	ID       int64   `db:"id"`
	Handle   string  `db:"handle"`
	Score    float64 `db:"score"`
	Active   bool    `db:"active"`
	Avatar   []byte  `db:"avatar"`
	Nickname *string `db:"nickname"`
	Rank     *uint16 `db:"rank"`
	Internal string  `db:"-"`
	Untagged int
}

func profileSchema(t *testing.T) store.Schema {
	t.Helper()

	schema, err := store.NewSchema("profiles",
		store.Column{Name: "created", Type: store.Text},
		store.Column{Name: "handle", Type: store.Text},
		store.Column{Name: "score", Type: store.Real},
		store.Column{Name: "active", Type: store.Integer},
		store.Column{Name: "avatar", Type: store.Blob},
		store.Column{Name: "nickname", Type: store.Text},
		store.Column{Name: "rank", Type: store.Integer},
	)
	require.NoError(t, err)
	return schema
}

func TestStructCodecRoundTrip(t *testing.T) {
	as := require.New(t)

	codec, err := NewStructCodec[profile](profileSchema(t))
	as.NoError(err)

	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	nick := "zed"
	rank := uint16(3)
	p := profile{
		Audit:    Audit{Created: created},
		ID:       9,
		Handle:   "z",
		Score:    1.5,
		Active:   true,
		Avatar:   []byte{0xca, 0xfe},
		Nickname: &nick,
		Rank:     &rank,
		Internal: "not stored",
		Untagged: 5,
	}

	rec, err := codec.Encode(p)
	as.NoError(err)
	as.Equal(store.R(
		"created", "2024-05-01T12:30:00Z",
		"id", int64(9),
		"handle", "z",
		"score", 1.5,
		"active", int64(1),
		"avatar", []byte{0xca, 0xfe},
		"nickname", "zed",
		"rank", int64(3),
	), rec)

	out, err := codec.Decode(rec)
	as.NoError(err)
	p.Internal = ""
	p.Untagged = 0
	as.Equal(p, out)
}

func TestStructCodecNulls(t *testing.T) {
	as := require.New(t)

	codec, err := NewStructCodec[profile](profileSchema(t))
	as.NoError(err)

	rec, err := codec.Encode(profile{})
	as.NoError(err)
	nick, _ := rec.Get("nickname")
	as.Nil(nick)

	out, err := codec.Decode(store.R("id", int64(1), "nickname", nil, "rank", nil, "score", int64(2), "extra", "ignored"))
	as.NoError(err)
	as.Nil(out.Nickname)
	as.Nil(out.Rank)
	as.Equal(2.0, out.Score)
	as.EqualValues(1, out.ID)
}

func TestStructCodecMismatch(t *testing.T) {
	as := require.New(t)

	codec, err := NewStructCodec[profile](profileSchema(t))
	as.NoError(err)

	_, err = codec.Decode(store.R("handle", int64(1)))
	as.ErrorIs(err, store.ErrTypeMismatch)

	_, err = codec.Decode(store.R("rank", int64(1<<20)))
	as.ErrorIs(err, store.ErrTypeMismatch)

	_, err = codec.Decode(store.R("rank", int64(-1)))
	as.ErrorIs(err, store.ErrTypeMismatch)

	_, err = codec.Decode(store.R("created", "yesterday"))
	as.ErrorIs(err, store.ErrTypeMismatch)

	out, err := codec.Decode(store.R("created", "2024-05-01 12:30:00"))
	as.NoError(err)
	as.Equal(2024, out.Created.Year())
}

func TestStructCodecValidation(t *testing.T) {
	as := require.New(t)
	schema := profileSchema(t)

	_, err := NewStructCodec[int](schema)
	as.Error(err)

	type unknown struct {
		Email string `db:"email"`
	}
	_, err = NewStructCodec[unknown](schema)
	as.ErrorIs(err, store.ErrInvalidColumn)

	type twice struct {
		A string `db:"handle"`
		B string `db:"handle"`
	}
	_, err = NewStructCodec[twice](schema)
	as.ErrorIs(err, store.ErrInvalidColumn)

	type badID struct {
		ID string `db:"id"`
	}
	_, err = NewStructCodec[badID](schema)
	as.ErrorIs(err, store.ErrTypeMismatch)

	type unstorable struct {
		Handle []string `db:"handle"`
	}
	_, err = NewStructCodec[unstorable](schema)
	as.ErrorIs(err, store.ErrTypeMismatch)

	type empty struct {
		Handle string
	}
	_, err = NewStructCodec[empty](schema)
	as.ErrorIs(err, store.ErrInvalidColumn)
}

func TestRecordCodec(t *testing.T) {
	as := require.New(t)

	in := store.R("id", int64(1), "name", "Ann")
	out, err := RecordCodec{}.Encode(in)
	as.NoError(err)
	as.Equal(in, out)

	out[1].Value = "Bob"
	name, _ := in.Get("name")
	as.Equal("Ann", name)
}

type Stamps struct {
	Note string `db:"handle"`
}

type stamped struct {
	*Stamps
	ID    int64   `db:"id"`
	Score float64 `db:"score"`
}

type hiddenStamps struct {
	Note string `db:"handle"`
}

type hiddenStamped struct {
	*hiddenStamps
	Score float64 `db:"score"`
}

func TestStructCodecEmbeddedPointer(t *testing.T) {
	as := require.New(t)

	codec, err := NewStructCodec[stamped](profileSchema(t))
	as.NoError(err)

	rec, err := codec.Encode(stamped{Score: 2})
	as.NoError(err)
	as.Equal(store.R("handle", nil, "id", int64(0), "score", 2.0), rec)

	rec, err = codec.Encode(stamped{Stamps: &Stamps{Note: "n"}, ID: 1})
	as.NoError(err)
	as.Equal(store.R("handle", "n", "id", int64(1), "score", 0.0), rec)

	out, err := codec.Decode(store.R("id", int64(4), "handle", "kept", "score", 1.5))
	as.NoError(err)
	as.NotNil(out.Stamps)
	as.Equal("kept", out.Note)
	as.Equal(int64(4), out.ID)

	out, err = codec.Decode(store.R("id", int64(5), "handle", nil, "score", 1.5))
	as.NoError(err)
	as.Nil(out.Stamps)
	as.Equal(1.5, out.Score)

	_, err = NewStructCodec[hiddenStamped](profileSchema(t))
	as.ErrorIs(err, store.ErrInvalidColumn)
}
