package knowledge

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a process by its command and optional
// discriminators. Two fingerprints with the same fields always share a hash
// key, across runs and machines.
type Fingerprint struct {
	Command         string  `json:"command"`
	DefaultPort     *uint16 `json:"default_port"`
	ProjectHash     *string `json:"project_hash"`
	ContainerPrefix *string `json:"container_prefix"`
}

// NewFingerprint returns a fingerprint carrying only the command.
func NewFingerprint(command string) Fingerprint {
	return Fingerprint{Command: command}
}

// WithPort returns a copy with the default port set.
func (f Fingerprint) WithPort(port uint16) Fingerprint {
	f.DefaultPort = &port
	return f
}

// WithProjectHash returns a copy with the project hash set.
func (f Fingerprint) WithProjectHash(hash string) Fingerprint {
	f.ProjectHash = &hash
	return f
}

// WithContainerPrefix returns a copy with the container prefix set.
func (f Fingerprint) WithContainerPrefix(prefix string) Fingerprint {
	f.ContainerPrefix = &prefix
	return f
}

// HashKey returns the 16 hex digit xxhash64 of the fingerprint fields. Each
// field is written with a presence byte and, for strings, a length prefix so
// that no two distinct field sets share an encoding.
func (f Fingerprint) HashKey() string {
	d := xxhash.New()
	writeString(d, &f.Command)
	if f.DefaultPort != nil {
		var buf [3]byte
		buf[0] = 1
		binary.BigEndian.PutUint16(buf[1:], *f.DefaultPort)
		_, _ = d.Write(buf[:])
	} else {
		_, _ = d.Write([]byte{0})
	}
	writeString(d, f.ProjectHash)
	writeString(d, f.ContainerPrefix)
	return fmt.Sprintf("%016x", d.Sum64())
}

func writeString(d *xxhash.Digest, value *string) {
	if value == nil {
		_, _ = d.Write([]byte{0})
		return
	}
	var header [5]byte
	header[0] = 1
	binary.BigEndian.PutUint32(header[1:], uint32(len(*value)))
	_, _ = d.Write(header[:])
	_, _ = d.WriteString(*value)
}

// String renders the fingerprint for logs and tables.
func (f Fingerprint) String() string {
	out := f.Command
	if f.DefaultPort != nil {
		out += fmt.Sprintf(":%d", *f.DefaultPort)
	}
	if f.ProjectHash != nil {
		out += " project=" + *f.ProjectHash
	}
	if f.ContainerPrefix != nil {
		out += " prefix=" + *f.ContainerPrefix
	}
	return out
}
