// Package sdp provides the SDP service record that is advertised with the
// HID profile.
package sdp

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// RecordFile is the default file name of the service record.
const RecordFile = "sdp_record.xml"

// The SDP attribute IDs that hold the L2CAP PSMs of the HID channels.
const (
	attrProtocolDescriptorList           = "0x0004"
	attrAdditionalProtocolDescriptorList = "0x000d"

	uuidL2CAP = "0x0100"
)

//go:embed sdp_record.xml
var defaultRecord []byte

// Record is a service record in the Bluez XML format.
type Record struct {
	// XML holds the record as it is passed to Bluez.
	XML string

	// ControlPSM and InterruptPSM are the PSMs that the record advertises
	// for the HID control and interrupt channels. They are zero if the
	// record does not declare them.
	ControlPSM   uint16
	InterruptPSM uint16
}

// node is a generic element of the record.
type node struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
	Value   string `xml:"value,attr"`
	Nodes   []node `xml:",any"`
}

// DefaultPath returns the path of the record file next to the executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return RecordFile
	}

	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return filepath.Join(filepath.Dir(exe), RecordFile)
}

// Load reads and parses the record from the provided path.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fault.Wrap(errors.Join(errorkinds.ErrResourceRead, err),
			fctx.With(context.Background(),
				"error_at", "sdp-read-record",
				"path", path,
			),
			ftag.With(ftag.Internal),
			fmsg.With("Could not open the SDP record"),
		)
	}

	record, err := Parse(data)
	if err != nil {
		return record, fault.Wrap(err,
			fctx.With(context.Background(), "path", path),
			fmsg.With("Could not parse the SDP record at "+path),
		)
	}

	return record, nil
}

// Default returns the built-in HID keyboard record.
func Default() Record {
	record, err := Parse(defaultRecord)
	if err != nil {
		panic("sdp: invalid built-in record: " + err.Error())
	}

	return record
}

// WriteDefault writes the built-in record to the provided path.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "sdp-write-dir", "path", path),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot create the directory of the SDP record"),
		)
	}

	if err := os.WriteFile(path, defaultRecord, 0o644); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "sdp-write-record", "path", path),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot write the SDP record"),
		)
	}

	return nil
}

// Parse parses a record, and extracts the PSMs of the HID channels.
func Parse(data []byte) (Record, error) {
	var root node

	if len(bytes.TrimSpace(data)) == 0 {
		return Record{}, parseError(errors.New("record is empty"))
	}

	if err := xml.Unmarshal(data, &root); err != nil {
		return Record{}, parseError(err)
	}

	if root.XMLName.Local != "record" {
		return Record{}, parseError(errors.New("root element is '" + root.XMLName.Local + "', expected 'record'"))
	}

	record := Record{XML: string(data)}

	for _, attr := range root.Nodes {
		switch strings.ToLower(attr.ID) {
		case attrProtocolDescriptorList:
			record.ControlPSM = findPSM(attr)

		case attrAdditionalProtocolDescriptorList:
			record.InterruptPSM = findPSM(attr)
		}
	}

	return record, nil
}

// findPSM returns the first PSM that follows an L2CAP UUID in a
// protocol descriptor sequence.
func findPSM(n node) uint16 {
	for i, child := range n.Nodes {
		if child.XMLName.Local == "uuid" && strings.EqualFold(child.Value, uuidL2CAP) &&
			i+1 < len(n.Nodes) && n.Nodes[i+1].XMLName.Local == "uint16" {
			psm, err := strconv.ParseUint(n.Nodes[i+1].Value, 0, 16)
			if err == nil {
				return uint16(psm)
			}
		}

		if psm := findPSM(child); psm != 0 {
			return psm
		}
	}

	return 0
}

func parseError(err error) error {
	return fault.Wrap(errors.Join(errorkinds.ErrResourceRead, err),
		fctx.With(context.Background(), "error_at", "sdp-parse-record"),
		ftag.With(ftag.InvalidArgument),
		fmsg.With("Invalid SDP record"),
	)
}
