package valkey

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"
)

// Hash fields of a stored chunk.
const (
	FieldText   = "text"
	FieldVector = "vector"

	distanceAlias = "__dist"
)

// ChunkIndex describes the FT index over one document's chunk hashes.
type ChunkIndex struct {
	Name      string
	Dimension int
	// HNSW graph parameters. Zero keeps the server default.
	M              int
	EFConstruction int
}

// KeyPrefix returns the prefix shared by every chunk hash of index.
func KeyPrefix(index string) string { return index + ":" }

func (ix ChunkIndex) createArgs() ([]string, error) {
	if ix.Name == "" || strings.ContainsAny(ix.Name, " \t\r\n") {
		return nil, fmt.Errorf("invalid index name %q", ix.Name)
	}
	if ix.Dimension <= 0 {
		return nil, errors.New("vector dimension must be positive")
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(ix.Dimension),
		"DISTANCE_METRIC", "COSINE",
	}
	if ix.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(ix.M))
	}
	if ix.EFConstruction > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(ix.EFConstruction))
	}

	args := []string{
		ix.Name, "ON", "HASH",
		"PREFIX", "1", KeyPrefix(ix.Name),
		"SCHEMA",
		FieldText, "TEXT",
		FieldVector, "VECTOR", "HNSW", strconv.Itoa(len(attrs)),
	}
	return append(args, attrs...), nil
}

// CreateChunkIndex runs FT.CREATE for ix. An existing index yields ErrIndexExists.
func (c *Client) CreateChunkIndex(ctx context.Context, ix ChunkIndex) error {
	args, err := ix.createArgs()
	if err != nil {
		return err
	}
	if err := c.ft(ctx, "FT.CREATE", args...).Error(); err != nil {
		if serverSays(err, "already exists") {
			return ErrIndexExists
		}
		return &CommandError{Cmd: "FT.CREATE", Err: err}
	}
	return nil
}

// IndexState is the part of FT.INFO that decides whether an index can serve queries.
type IndexState struct {
	Exists   bool
	Docs     int64
	Indexing bool
}

// IndexState reads FT.INFO. A missing index is reported as Exists == false, not an error.
func (c *Client) IndexState(ctx context.Context, name string) (IndexState, error) {
	raw, err := c.ft(ctx, "FT.INFO", name).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return IndexState{}, nil
		}
		return IndexState{}, &CommandError{Cmd: "FT.INFO", Err: err}
	}
	return parseState(raw), nil
}

// parseState understands both the Redis ("indexing") and the valkey-search
// ("backfill_in_progress", "state") FT.INFO layouts.
func parseState(raw []rueidis.RedisMessage) IndexState {
	st := IndexState{Exists: true}
	for i := 0; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		v := scalar(&raw[i+1])
		switch key {
		case "num_docs":
			st.Docs, _ = strconv.ParseInt(v, 10, 64)
		case "indexing", "backfill_in_progress":
			st.Indexing = st.Indexing || v == "1"
		case "state":
			st.Indexing = st.Indexing || (v != "" && !strings.EqualFold(v, "ready"))
		}
	}
	return st
}

// scalar renders a string or number reply; nested replies yield "".
func scalar(m *rueidis.RedisMessage) string {
	if s, err := m.ToString(); err == nil {
		return s
	}
	if n, err := m.AsInt64(); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := m.AsFloat64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// Chunk is one chunk hash.
type Chunk struct {
	ID     string
	Text   string
	Vector []float32
}

// WriteChunks stores every chunk under "<index>:<id>" in one pipelined round-trip.
func (c *Client) WriteChunks(ctx context.Context, index string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, len(chunks))
	for i, ch := range chunks {
		cmds[i] = c.rc.B().Hset().Key(KeyPrefix(index)+ch.ID).FieldValue().
			FieldValue(FieldText, ch.Text).
			FieldValue(FieldVector, encodeVector(ch.Vector)).
			Build()
	}

	for i, res := range c.rc.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &CommandError{Cmd: "HSET", Err: fmt.Errorf("chunk %s: %w", chunks[i].ID, err)}
		}
	}
	return nil
}

// Neighbor is a KNN hit. Distance is the cosine distance in [0, 2].
type Neighbor struct {
	ID       string
	Text     string
	Distance float64
}

// NearestChunks returns up to k chunks of index closest to vector, nearest first.
func (c *Client) NearestChunks(ctx context.Context, index string, vector []float32, k int) ([]Neighbor, error) {
	switch {
	case index == "":
		return nil, errors.New("index name is required")
	case len(vector) == 0:
		return nil, errors.New("query vector is required")
	case k <= 0:
		return nil, errors.New("k must be positive")
	}

	query := fmt.Sprintf("*=>[KNN %d @%s $BLOB AS %s]", k, FieldVector, distanceAlias)
	raw, err := c.ft(ctx, "FT.SEARCH",
		index, query,
		"RETURN", "2", distanceAlias, FieldText,
		"SORTBY", distanceAlias,
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", encodeVector(vector),
		"DIALECT", "2",
	).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, ErrUnknownIndex
		}
		return nil, &CommandError{Cmd: "FT.SEARCH", Err: err}
	}
	return parseNeighbors(raw, KeyPrefix(index))
}

// parseNeighbors reads the RESP2 layout [total, key1, [f, v, ...], key2, ...].
func parseNeighbors(raw []rueidis.RedisMessage, prefix string) ([]Neighbor, error) {
	if len(raw) == 0 {
		return []Neighbor{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	out := make([]Neighbor, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		n := Neighbor{ID: strings.TrimPrefix(key, prefix)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].ToString()
			value, _ := fields[j+1].ToString()
			switch name {
			case FieldText:
				n.Text = value
			case distanceAlias:
				n.Distance, _ = strconv.ParseFloat(value, 64)
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// encodeVector lays v out as little-endian FLOAT32, the format FT vector fields
// expect both in HSET values and in KNN query params.
func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
