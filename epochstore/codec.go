// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epochstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
)

// Values stored in the epoch tables are internal, same-process state
// (crash-recovery snapshots and in-process CCO promotion), never a
// cross-validator wire format — wire-format encoding of consensus
// blocks is an explicit Non-goal (spec §1). encoding/gob is the stdlib
// tool built for exactly this case, so table values are gob-encoded
// rather than reaching for a cross-language serialization library; see
// DESIGN.md for the full justification.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(data []byte) uint64 {
	return binary.BigEndian.Uint64(data)
}
