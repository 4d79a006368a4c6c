package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionCurrent = 1
	maxFieldLen                 = 65535
)

// CurrentSchemaVersion is the binary layout written by Encode.
const CurrentSchemaVersion = sessionFormatVersionCurrent

var errInvalidVersion = errors.New("invalid session version")

// Encode writes s in the layout
// version(1) | sidLen(1) sid | nonceLen(2) nonce | userLen(2) user | createdAt(8) | expiresAt(8).
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.SessionID) > 255 {
		return nil, errors.New("sessionID too long")
	}
	buf.WriteByte(byte(len(s.SessionID)))
	buf.WriteString(s.SessionID)

	if err := writeString16(&buf, s.Nonce, "nonce"); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, s.User, "user"); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errInvalidVersion
	}

	s := &Session{}

	sidLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	sid := make([]byte, sidLen)
	if _, err := io.ReadFull(reader, sid); err != nil {
		return nil, err
	}
	s.SessionID = string(sid)

	if s.Nonce, err = readString16(reader); err != nil {
		return nil, err
	}
	if s.User, err = readString16(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func writeString16(buf *bytes.Buffer, v, field string) error {
	if len(v) > maxFieldLen {
		return errors.New(field + " too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
