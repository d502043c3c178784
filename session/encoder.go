package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/goGuard/permission"
)

const descriptorFormatVersion = 1

// ErrCorrupt is returned by Decode for blobs that are not a valid descriptor.
var ErrCorrupt = errors.New("session blob corrupt")

func writeString(buf *bytes.Buffer, field, value string) error {
	if len(value) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(value)))
	buf.WriteString(value)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Encode serializes d into the binary form stored by [RedisStore].
func Encode(d *Descriptor) ([]byte, error) {
	if d == nil {
		return nil, errors.New("nil descriptor")
	}
	if !d.Role.Valid() {
		return nil, permission.ErrUnknownRole
	}

	var buf bytes.Buffer
	buf.WriteByte(descriptorFormatVersion)

	if err := writeString(&buf, "userID", d.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "email", d.Email); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "tenantID", d.TenantID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "tenantName", d.TenantName); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(d.Role))

	if err := binary.Write(&buf, binary.BigEndian, d.IssuedAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. Any malformed input yields
// ErrCorrupt.
func Decode(data []byte) (*Descriptor, error) {
	d, err := decode(data)
	if err != nil {
		return nil, ErrCorrupt
	}
	return d, nil
}

func decode(data []byte) (*Descriptor, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != descriptorFormatVersion {
		return nil, errors.New("invalid descriptor version")
	}

	d := &Descriptor{}
	if d.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if d.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if d.TenantID, err = readString(reader); err != nil {
		return nil, err
	}
	if d.TenantName, err = readString(reader); err != nil {
		return nil, err
	}

	role, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	d.Role = permission.Role(role)
	if !d.Role.Valid() {
		return nil, permission.ErrUnknownRole
	}

	var issuedAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	d.IssuedAt = time.UnixMilli(issuedAt).UTC()

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes")
	}
	return d, nil
}
