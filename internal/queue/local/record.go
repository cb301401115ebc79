package local

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
)

// Message record layout: metaLen(4B BE) | meta JSON | body | crc32c(meta|body)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorruptRecord = errors.New("local: corrupt message record")

// recordMeta is the persisted envelope around a message body.
type recordMeta struct {
	ID           string            `json:"id"`
	GroupID      string            `json:"groupId"`
	DedupID      string            `json:"dedupId,omitempty"`
	SentAtMs     int64             `json:"sentAtMs"`
	ReceiveCount int               `json:"receiveCount"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

func encodeRecord(meta recordMeta, body []byte) ([]byte, error) {
	mb, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4+len(mb)+len(body)+4)
	var hb [4]byte
	binary.BigEndian.PutUint32(hb[:], uint32(len(mb)))
	out = append(out, hb[:]...)
	out = append(out, mb...)
	out = append(out, body...)
	crc := crc32.Update(0, castagnoli, mb)
	crc = crc32.Update(crc, castagnoli, body)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	out = append(out, cb[:]...)
	return out, nil
}

func decodeRecord(b []byte) (recordMeta, []byte, error) {
	var meta recordMeta
	if len(b) < 8 {
		return meta, nil, errCorruptRecord
	}
	mlen := binary.BigEndian.Uint32(b[:4])
	if int(4+mlen+4) > len(b) {
		return meta, nil, errCorruptRecord
	}
	metaEnd := 4 + int(mlen)
	mb := b[4:metaEnd]
	body := b[metaEnd : len(b)-4]
	want := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, mb)
	crc = crc32.Update(crc, castagnoli, body)
	if crc != want {
		return meta, nil, errCorruptRecord
	}
	if err := json.Unmarshal(mb, &meta); err != nil {
		return meta, nil, errCorruptRecord
	}
	return meta, append([]byte(nil), body...), nil
}
