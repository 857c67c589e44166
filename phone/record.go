package phone

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// recordVersion is written into every record. Readers skip fields they don't
// know, so new fields only need new numbers.
const recordVersion = 1

const (
	fieldVersion   protowire.Number = 1
	fieldDirection protowire.Number = 2
	fieldID        protowire.Number = 3
	fieldRemoteURI protowire.Number = 4
	fieldStatus    protowire.Number = 5
	fieldStart     protowire.Number = 6
	fieldAccept    protowire.Number = 7
	fieldClose     protowire.Number = 8
	fieldDuration  protowire.Number = 9
	fieldUserData  protowire.Number = 10
)

var ErrBadRecord = errors.New("malformed call record")

// Record is the persisted summary of a call. A zero time means the moment
// never happened.
type Record struct {
	Version    int
	Direction  Direction
	ID         int
	RemoteURI  string
	Status     Status
	StartTime  time.Time
	AcceptTime time.Time
	CloseTime  time.Time
	Duration   int
	UserData   string
}

func recordOf(c *Call) Record {
	return Record{
		Version:    recordVersion,
		Direction:  c.dir,
		ID:         c.id,
		RemoteURI:  c.url,
		Status:     c.Status(),
		StartTime:  c.start,
		AcceptTime: c.accept,
		CloseTime:  c.close,
		Duration:   c.duration,
		UserData:   c.userData,
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// EncodeRecord encodes r as a protobuf wire message.
func EncodeRecord(r Record) []byte {
	var b []byte
	b = appendVarint(b, fieldVersion, recordVersion)
	b = appendVarint(b, fieldDirection, int64(r.Direction))
	b = appendVarint(b, fieldID, int64(r.ID))
	b = appendString(b, fieldRemoteURI, r.RemoteURI)
	b = appendVarint(b, fieldStatus, int64(r.Status))
	b = appendVarint(b, fieldStart, unixMilli(r.StartTime))
	b = appendVarint(b, fieldAccept, unixMilli(r.AcceptTime))
	b = appendVarint(b, fieldClose, unixMilli(r.CloseTime))
	b = appendVarint(b, fieldDuration, int64(r.Duration))
	b = appendString(b, fieldUserData, r.UserData)
	return b
}

// DecodeRecord decodes a message produced by EncodeRecord.
func DecodeRecord(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("%w: %w", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("%w: %w", ErrBadRecord, protowire.ParseError(n))
			}
			b = b[n:]
			setVarint(&r, num, protowire.DecodeZigZag(v))
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, fmt.Errorf("%w: %w", ErrBadRecord, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldRemoteURI:
				r.RemoteURI = v
			case fieldUserData:
				r.UserData = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("%w: %w", ErrBadRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func setVarint(r *Record, num protowire.Number, v int64) {
	switch num {
	case fieldVersion:
		r.Version = int(v)
	case fieldDirection:
		r.Direction = Direction(v)
	case fieldID:
		r.ID = int(v)
	case fieldStatus:
		r.Status = Status(v)
	case fieldStart:
		r.StartTime = fromUnixMilli(v)
	case fieldAccept:
		r.AcceptTime = fromUnixMilli(v)
	case fieldClose:
		r.CloseTime = fromUnixMilli(v)
	case fieldDuration:
		r.Duration = int(v)
	}
}

// WriteRecords writes length-delimited records to w.
func WriteRecords(w io.Writer, records ...Record) error {
	var b []byte
	for _, r := range records {
		b = protowire.AppendBytes(b, EncodeRecord(r))
	}
	_, err := w.Write(b)
	return err
}

// ReadRecords reads every length-delimited record from r.
func ReadRecords(r io.Reader) ([]Record, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var out []Record
	for len(b) > 0 {
		msg, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return out, fmt.Errorf("%w: %w", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]
		rec, err := DecodeRecord(msg)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendRecordFile appends records to the file at path, creating it if
// needed.
func AppendRecordFile(path string, records ...Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := WriteRecords(f, records...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadRecordFile reads the records stored at path. A missing file holds no
// records.
func ReadRecordFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}
