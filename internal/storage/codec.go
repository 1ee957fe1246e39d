package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"coalsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var (
	ErrVersionMismatch = errors.New("record version mismatch")
	ErrCorruptBlob     = errors.New("corrupt graph blob")
)

// Graph blobs start with a one byte compression flag and the uncompressed
// length, followed by the JSON payload as an LZ4 block or raw.
const (
	blobRaw  byte = 0
	blobLZ4  byte = 1
	blobHead      = 1 + 4
)

// Stamp marks a record with the current versions.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

// EncodeGraph serialises a graph and compresses it with LZ4. Payloads that
// do not compress are stored raw.
func EncodeGraph(g model.GraphRecord) ([]byte, error) {
	payload, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	out := make([]byte, blobHead+lz4.CompressBlockBound(len(payload)))
	binary.LittleEndian.PutUint32(out[1:blobHead], uint32(len(payload)))
	written, err := lz4.CompressBlock(payload, out[blobHead:], nil)
	if err != nil {
		return nil, fmt.Errorf("compress graph: %w", err)
	}
	if written == 0 || written >= len(payload) {
		out[0] = blobRaw
		return append(out[:blobHead], payload...), nil
	}
	out[0] = blobLZ4
	return out[:blobHead+written], nil
}

func DecodeGraph(data []byte) (model.GraphRecord, error) {
	if len(data) < blobHead {
		return model.GraphRecord{}, ErrCorruptBlob
	}
	size := int(binary.LittleEndian.Uint32(data[1:blobHead]))
	var payload []byte
	switch data[0] {
	case blobRaw:
		payload = data[blobHead:]
	case blobLZ4:
		payload = make([]byte, size)
		n, err := lz4.UncompressBlock(data[blobHead:], payload)
		if err != nil {
			return model.GraphRecord{}, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
		}
		payload = payload[:n]
	default:
		return model.GraphRecord{}, fmt.Errorf("%w: flag %d", ErrCorruptBlob, data[0])
	}
	if len(payload) != size {
		return model.GraphRecord{}, fmt.Errorf("%w: %d bytes, header says %d", ErrCorruptBlob, len(payload), size)
	}
	var graph model.GraphRecord
	if err := json.Unmarshal(payload, &graph); err != nil {
		return model.GraphRecord{}, err
	}
	if err := checkVersion(graph.VersionedRecord); err != nil {
		return model.GraphRecord{}, err
	}
	return graph, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
