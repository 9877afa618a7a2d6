package dbenv

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
)

const manifestFileName = "manifest"

// FormatKey is the on-disk format identifier this envelope writes and
// requires on open.
const FormatKey = "db_beta"

const maxFormatKeyLen = 255

// Manifest is the decoded form of `<db>/manifest`: a length-prefixed ASCII
// format key plus a one-byte endianness flag.
type Manifest struct {
	FormatKey    string
	LittleEndian bool
}

// hostIsLittleEndian reports the host's native byte order, the value every
// newly created manifest records and every opened manifest is checked
// against.
func hostIsLittleEndian() bool {
	return binary.NativeEndian.Uint16([]byte{1, 0}) == 1
}

func encodeManifest(m Manifest) ([]byte, error) {
	key := m.FormatKey
	if len(key) > maxFormatKeyLen {
		return nil, fmt.Errorf("%w: dbenv: format key %q longer than %d bytes", dberr.ErrConfig, key, maxFormatKeyLen)
	}
	buf := make([]byte, 0, 2+len(key))
	buf = append(buf, byte(len(key)))
	buf = append(buf, key...)
	if m.LittleEndian {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

func decodeManifest(buf []byte) (Manifest, error) {
	if len(buf) < 1 {
		return Manifest{}, fmt.Errorf("%w: dbenv: manifest truncated reading key length", dberr.ErrCorruptRun)
	}
	n := int(buf[0])
	if len(buf) < 1+n+1 {
		return Manifest{}, fmt.Errorf("%w: dbenv: manifest truncated reading key/endianness", dberr.ErrCorruptRun)
	}
	return Manifest{
		FormatKey:    string(buf[1 : 1+n]),
		LittleEndian: buf[1+n] != 0,
	}, nil
}

// writeManifestAtomic serializes m and writes it to dir's manifest file via
// a temp-file-then-rename.
func writeManifestAtomic(dir string, m Manifest) error {
	buf, err := encodeManifest(m)
	if err != nil {
		return err
	}
	path := dir + "/" + manifestFileName
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("%w: dbenv: write manifest temp file: %v", dberr.ErrIOFault, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: dbenv: rename manifest into place: %v", dberr.ErrIOFault, err)
	}
	return nil
}

// readManifest loads and decodes dir's manifest file.
func readManifest(dir string) (Manifest, error) {
	buf, err := os.ReadFile(dir + "/" + manifestFileName)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: dbenv: read manifest: %v", dberr.ErrIOFault, err)
	}
	return decodeManifest(buf)
}

// validateManifest refuses a manifest whose format key or endianness flag
// does not match this build. The mismatch is fatal on open.
func validateManifest(m Manifest) error {
	if m.FormatKey != FormatKey {
		return fmt.Errorf("%w: dbenv: manifest format key %q, want %q", dberr.ErrManifestMismatch, m.FormatKey, FormatKey)
	}
	if m.LittleEndian != hostIsLittleEndian() {
		return fmt.Errorf("%w: dbenv: manifest endianness does not match host", dberr.ErrManifestMismatch)
	}
	return nil
}
