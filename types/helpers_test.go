package types_test

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/vectorclock"
)

func encodeDelta(t *testing.T, delta int64) []byte {
	t.Helper()
	return protowire.AppendVarint(nil, protowire.EncodeZigZag(delta))
}

func collabLoadMeta() collab.LoadMeta {
	return collab.LoadMeta{Local: vectorclock.New(), Loaded: vectorclock.New()}
}
